package scoring

import (
	"fmt"

	"github.com/hitoshi/marketscope/internal/model"
)

// 競争力スコアの重み。
const (
	compWeightPrice      = 0.35
	compWeightReputation = 0.25
	compWeightContent    = 0.25
	compWeightVelocity   = 0.15
)

// compNeutralScore は競合がない場合の競争力スコア。
const compNeutralScore = 50

// reputationPoints は出品者評価ティアの固定ポイント。
var reputationPoints = map[model.SellerReputation]float64{
	model.ReputationPlatinum: 100,
	model.ReputationGold:     85,
	model.ReputationSilver:   65,
	model.ReputationBronze:   45,
	model.ReputationNew:      30,
	model.ReputationUnknown:  30,
}

// CompetitivenessScorer は競合に対する出品の相対的な強さを採点する。
type CompetitivenessScorer struct{}

// NewCompetitivenessScorer はCompetitivenessScorerを生成する。
func NewCompetitivenessScorer() *CompetitivenessScorer {
	return &CompetitivenessScorer{}
}

// Score は出品の競争力スコアを計算する。
// 競合が与えられない場合はベンチマークが存在しないため、
// 説明付きの中立スコア50を返す。
func (s *CompetitivenessScorer) Score(listing *model.Listing, competitors []model.Listing) model.ScoreBreakdown {
	if len(competitors) == 0 {
		return model.ScoreBreakdown{
			Score: compNeutralScore,
			Label: labelFor(compNeutralScore),
			Details: map[string]float64{
				"relative_price":    compNeutralScore,
				"seller_reputation": compNeutralScore,
				"content_advantage": compNeutralScore,
				"sales_velocity":    compNeutralScore,
			},
			Suggestions: []string{
				"Sem concorrentes para comparação; colete o mercado antes de avaliar competitividade",
			},
		}
	}

	var suggestions []string

	priceScore, priceSugg := s.scoreRelativePrice(listing, competitors)
	suggestions = append(suggestions, priceSugg...)

	reputationScore, reputationSugg := s.scoreReputation(listing.Seller)
	suggestions = append(suggestions, reputationSugg...)

	contentScore, contentSugg := s.scoreContentAdvantage(listing, competitors)
	suggestions = append(suggestions, contentSugg...)

	velocityScore := s.scoreVelocity(listing, competitors)

	return buildBreakdown([]weightedFactor{
		{"relative_price", priceScore, compWeightPrice},
		{"seller_reputation", reputationScore, compWeightReputation},
		{"content_advantage", contentScore, compWeightContent},
		{"sales_velocity", velocityScore, compWeightVelocity},
	}, suggestions)
}

func (s *CompetitivenessScorer) scoreRelativePrice(listing *model.Listing, competitors []model.Listing) (float64, []string) {
	mean := competitorMeanPrice(competitors)
	if mean <= 0 || listing.Price <= 0 {
		return priceNeutralScore, nil
	}

	ratio := listing.Price / mean
	score := priceTierScore(ratio)

	var suggestions []string
	if ratio > 1.25 {
		suggestions = append(suggestions,
			fmt.Sprintf("Preço muito acima da média do mercado (R$ %.2f); revisar posicionamento", mean))
	}
	return score, suggestions
}

func (s *CompetitivenessScorer) scoreReputation(seller model.Seller) (float64, []string) {
	points, ok := reputationPoints[seller.Reputation]
	if !ok {
		points = reputationPoints[model.ReputationUnknown]
	}

	var suggestions []string
	if points < 65 {
		suggestions = append(suggestions,
			"Reputação do vendedor abaixo dos líderes; reduzir cancelamentos e atrasos de envio")
	}
	return points, suggestions
}

// scoreContentAdvantage はメディア数+箇条書き数を競合平均と比較する。
// 比率×100をスコアとし100でキャップする。競合にコンテンツがなければ中立値。
func (s *CompetitivenessScorer) scoreContentAdvantage(listing *model.Listing, competitors []model.Listing) (float64, []string) {
	own := float64(listing.MediaCount() + len(listing.TextBlocks.Bullets))

	sum := 0
	for _, c := range competitors {
		sum += c.MediaCount() + len(c.TextBlocks.Bullets)
	}
	avg := float64(sum) / float64(len(competitors))
	if avg <= 0 {
		return compNeutralScore, nil
	}

	score := own / avg * 100
	if score > 100 {
		score = 100
	}

	var suggestions []string
	if score < 50 {
		suggestions = append(suggestions,
			"Conteúdo (fotos + bullets) bem abaixo da média dos concorrentes")
	}
	return score, suggestions
}

// scoreVelocity は推定販売数を競合平均と比較する。比率×100、100キャップ。
func (s *CompetitivenessScorer) scoreVelocity(listing *model.Listing, competitors []model.Listing) float64 {
	avg := competitorAvgSales(competitors)
	if avg <= 0 {
		return compNeutralScore
	}

	score := float64(listing.SocialProof.EstimatedSales) / avg * 100
	if score > 100 {
		score = 100
	}
	return score
}
