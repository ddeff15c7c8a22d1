package pipeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hitoshi/marketscope/internal/model"
)

// cheapBandRatio は平均価格に対する低価格帯の境界係数。
const cheapBandRatio = 0.7

// Aggregate は出品バッチを市場調査結果に集計する。
// 価格統計は正の価格のみを対象とし、バッチが空でも全フィールドがゼロ値の
// 結果を返す（NaNや負値は生成しない）。
func Aggregate(listings []model.Listing, keyword string, marketplace model.Marketplace) model.MarketResearchResult {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}

	return model.MarketResearchResult{
		Keyword:           keyword,
		Marketplace:       marketplace,
		TotalCollected:    len(listings),
		Listings:          listings,
		PriceRange:        priceRange(prices),
		TopSEOTerms:       topSEOTerms(listings),
		CompetitorSummary: competitorSummary(listings),
		Gaps:              detectGaps(listings, prices),
		ResearchedAt:      time.Now(),
	}
}

func priceRange(prices []float64) model.PriceRange {
	if len(prices) == 0 {
		return model.PriceRange{}
	}

	min, max, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}

	return model.PriceRange{
		Min:    round2(min),
		Max:    round2(max),
		Avg:    round2(sum / float64(len(prices))),
		Median: median(prices),
	}
}

// median は価格の中央値を返す。偶数個の場合は中央2値の平均。
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)

	mid := len(s) / 2
	if len(s)%2 == 0 {
		return round2((s[mid-1] + s[mid]) / 2)
	}
	return round2(s[mid])
}

// topSEOTerms は全出品のSEO用語を頻度順に上位30件まで集計する。
// 同頻度は初出順を維持する。
func topSEOTerms(listings []model.Listing) []model.TermFrequency {
	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, l := range listings {
		for _, t := range l.SEOTerms {
			if _, ok := freq[t]; !ok {
				firstSeen[t] = order
				order++
			}
			freq[t]++
		}
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})

	if len(terms) > maxSEOTerms {
		terms = terms[:maxSEOTerms]
	}

	result := make([]model.TermFrequency, len(terms))
	for i, t := range terms {
		result[i] = model.TermFrequency{Term: t, Freq: freq[t]}
	}
	return result
}

func competitorSummary(listings []model.Listing) model.CompetitorSummary {
	total := len(listings)
	if total == 0 {
		return model.CompetitorSummary{}
	}

	var freeShipping, fulfillment, sponsored int
	var mediaSum, reviewSum int
	var ratingSum float64
	for _, l := range listings {
		if l.Badges.FreeShipping {
			freeShipping++
		}
		if l.Badges.Fulfillment {
			fulfillment++
		}
		if l.Badges.Sponsored {
			sponsored++
		}
		mediaSum += l.MediaCount()
		reviewSum += l.SocialProof.ReviewCount
		ratingSum += l.SocialProof.Rating
	}

	n := float64(total)
	return model.CompetitorSummary{
		TotalAnalyzed:   total,
		FreeShippingPct: round1(float64(freeShipping) / n * 100),
		FulfillmentPct:  round1(float64(fulfillment) / n * 100),
		SponsoredPct:    round1(float64(sponsored) / n * 100),
		AvgMediaCount:   round1(float64(mediaSum) / n),
		AvgReviews:      round1(float64(reviewSum) / n),
		AvgRating:       round2(ratingSum / n),
	}
}

// detectGaps は市場の機会パターンを検出する。
// 正の価格が1つもないバッチではギャップ判定を行わない。
func detectGaps(listings []model.Listing, prices []float64) []model.MarketGap {
	if len(prices) == 0 {
		return nil
	}

	var gaps []model.MarketGap
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	avg := sum / float64(len(prices))
	total := len(listings)

	cheap := 0
	for _, l := range listings {
		if l.Price > 0 && l.Price < avg*cheapBandRatio {
			cheap++
		}
	}
	if cheap < 3 {
		gaps = append(gaps, model.MarketGap{
			Type:        model.GapTypePrice,
			Label:       "Segmento econômico pouco explorado",
			Description: fmt.Sprintf("Menos de 3 anúncios abaixo de R$ %.0f", avg*cheapBandRatio),
			Opportunity: "Versão econômica pode capturar demanda reprimida.",
		})
	}

	withoutFreeShipping := 0
	for _, l := range listings {
		if !l.Badges.FreeShipping {
			withoutFreeShipping++
		}
	}
	if float64(withoutFreeShipping) > float64(total)*0.6 {
		gaps = append(gaps, model.MarketGap{
			Type:        model.GapTypeShipping,
			Label:       "Maioria cobra frete",
			Description: "Mais de 60% dos anúncios cobram frete",
			Opportunity: "Frete grátis pode ser diferencial decisivo de conversão.",
		})
	}

	fewMedia := 0
	for _, l := range listings {
		if l.MediaCount() < 5 {
			fewMedia++
		}
	}
	if float64(fewMedia) > float64(total)*0.5 {
		gaps = append(gaps, model.MarketGap{
			Type:        model.GapTypeContent,
			Label:       "Anúncios com poucas fotos",
			Description: "Maioria tem < 5 imagens",
			Opportunity: "Galeria completa (8+ fotos) se destaca visualmente.",
		})
	}

	return gaps
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
