package scoring

import (
	"fmt"

	"github.com/hitoshi/marketscope/internal/model"
)

// コンバージョンスコアの重み。
const (
	convWeightMedia  = 0.30
	convWeightSocial = 0.30
	convWeightBadges = 0.25
	convWeightPrice  = 0.15
)

// priceNeutralScore は競合価格がない場合の価格サブスコア。
const priceNeutralScore = 70

// velocityNeutralPoints は競合がない場合の販売速度ポイント(最大30点中)。
const velocityNeutralPoints = 15

// ConversionScorer は出品の購買転換要素を採点する。
type ConversionScorer struct{}

// NewConversionScorer はConversionScorerを生成する。
func NewConversionScorer() *ConversionScorer {
	return &ConversionScorer{}
}

// Score は出品のコンバージョンスコアを計算する。
func (s *ConversionScorer) Score(listing *model.Listing, competitors []model.Listing) model.ScoreBreakdown {
	var suggestions []string

	mediaScore, mediaSugg := s.scoreMedia(listing)
	suggestions = append(suggestions, mediaSugg...)

	socialScore, socialSugg := s.scoreSocialProof(listing, competitors)
	suggestions = append(suggestions, socialSugg...)

	badgeScore, badgeSugg := s.scoreBadges(listing, competitors)
	suggestions = append(suggestions, badgeSugg...)

	priceScore, priceSugg := s.scorePrice(listing, competitors)
	suggestions = append(suggestions, priceSugg...)

	return buildBreakdown([]weightedFactor{
		{"media", mediaScore, convWeightMedia},
		{"social_proof", socialScore, convWeightSocial},
		{"badges", badgeScore, convWeightBadges},
		{"price", priceScore, convWeightPrice},
	}, suggestions)
}

// scoreMedia は写真枚数を段階スコアに写像する。
func (s *ConversionScorer) scoreMedia(listing *model.Listing) (float64, []string) {
	photos := listing.PhotoCount()

	var score float64
	var suggestions []string
	switch {
	case photos >= 10:
		score = 100
	case photos >= 7:
		score = 80
		suggestions = append(suggestions, "Adicionar mais fotos (10+ para galeria completa)")
	case photos >= 5:
		score = 60
		suggestions = append(suggestions, "Galeria abaixo do ideal; adicionar mais fotos")
	case photos >= 3:
		score = 35
		suggestions = append(suggestions, "Poucas fotos; anúncios com 8+ fotos convertem melhor")
	default:
		score = 10
		suggestions = append(suggestions, "Galeria crítica; adicionar fotos em alta resolução")
	}
	return score, suggestions
}

// scoreSocialProof はレビュー数・評価・販売速度の3要素を合算する。
// 内訳: レビュー数0-30点、評価0-40点、競合平均に対する販売速度0-30点。
func (s *ConversionScorer) scoreSocialProof(listing *model.Listing, competitors []model.Listing) (float64, []string) {
	proof := listing.SocialProof
	var suggestions []string

	var reviewPoints float64
	switch {
	case proof.ReviewCount >= 500:
		reviewPoints = 30
	case proof.ReviewCount >= 100:
		reviewPoints = 25
	case proof.ReviewCount >= 50:
		reviewPoints = 20
	case proof.ReviewCount >= 10:
		reviewPoints = 12
	case proof.ReviewCount >= 1:
		reviewPoints = 6
	default:
		suggestions = append(suggestions, "Sem avaliações; incentivar reviews dos primeiros compradores")
	}

	var ratingPoints float64
	switch {
	case proof.Rating >= 4.8:
		ratingPoints = 40
	case proof.Rating >= 4.5:
		ratingPoints = 34
	case proof.Rating >= 4.0:
		ratingPoints = 26
	case proof.Rating >= 3.5:
		ratingPoints = 16
	case proof.Rating > 0:
		ratingPoints = 8
		suggestions = append(suggestions, "Nota média baixa; investigar reclamações recorrentes")
	}

	velocityPoints := float64(velocityNeutralPoints)
	if avg := competitorAvgSales(competitors); avg > 0 {
		ratio := float64(proof.EstimatedSales) / avg
		switch {
		case ratio >= 1.5:
			velocityPoints = 30
		case ratio >= 1.0:
			velocityPoints = 24
		case ratio >= 0.5:
			velocityPoints = 15
		case ratio >= 0.2:
			velocityPoints = 8
		default:
			velocityPoints = 3
			suggestions = append(suggestions, "Velocidade de vendas muito abaixo da média dos concorrentes")
		}
	}

	return reviewPoints + ratingPoints + velocityPoints, suggestions
}

// scoreBadges は差別化バッジの有無を採点する。
// 基礎10点 + 送料無料40点 + フルフィルメント30点 + 無利息分割20点。
func (s *ConversionScorer) scoreBadges(listing *model.Listing, competitors []model.Listing) (float64, []string) {
	score := 10.0
	var suggestions []string

	if listing.Badges.FreeShipping {
		score += 40
	} else if majorityHasBadge(competitors, func(b model.Badges) bool { return b.FreeShipping }) {
		suggestions = append(suggestions, "Maioria dos concorrentes oferece frete grátis")
	}

	if listing.Badges.Fulfillment {
		score += 30
	} else if majorityHasBadge(competitors, func(b model.Badges) bool { return b.Fulfillment }) {
		suggestions = append(suggestions, "Concorrentes usam fulfillment; avaliar adesão ao programa")
	}

	if listing.Badges.InterestFreeInstallments {
		score += 20
	} else if majorityHasBadge(competitors, func(b model.Badges) bool { return b.InterestFreeInstallments }) {
		suggestions = append(suggestions, "Oferecer parcelamento sem juros como a maioria dos concorrentes")
	}

	return score, suggestions
}

// majorityHasBadge は競合の過半数が指定バッジを持つかを返す。
func majorityHasBadge(competitors []model.Listing, has func(model.Badges) bool) bool {
	if len(competitors) == 0 {
		return false
	}
	count := 0
	for _, c := range competitors {
		if has(c.Badges) {
			count++
		}
	}
	return float64(count) > float64(len(competitors))/2
}

// scorePrice は競合平均に対する価格比を採点する。競合価格がなければ中立値。
func (s *ConversionScorer) scorePrice(listing *model.Listing, competitors []model.Listing) (float64, []string) {
	mean := competitorMeanPrice(competitors)
	if mean <= 0 || listing.Price <= 0 {
		return priceNeutralScore, nil
	}

	ratio := listing.Price / mean
	score := priceTierScore(ratio)

	var suggestions []string
	if ratio > 1.1 {
		overagePct := (ratio - 1) * 100
		suggestions = append(suggestions,
			fmt.Sprintf("Preço %.0f%% acima da média dos concorrentes (R$ %.2f)", overagePct, mean))
	}
	return score, suggestions
}

// competitorAvgSales は競合の推定販売数の平均を返す。データがなければ0。
func competitorAvgSales(competitors []model.Listing) float64 {
	if len(competitors) == 0 {
		return 0
	}
	sum := 0
	for _, c := range competitors {
		sum += c.SocialProof.EstimatedSales
	}
	return float64(sum) / float64(len(competitors))
}
