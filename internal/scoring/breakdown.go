package scoring

import (
	"math"

	"github.com/hitoshi/marketscope/internal/model"
)

// maxSuggestions は1つのScoreBreakdownが保持する提案数の上限。
// サブスコアの計算順がそのまま優先度になる。
const maxSuggestions = 8

// weightedFactor は1つのサブスコアとその重みを表す。
type weightedFactor struct {
	name   string
	score  float64
	weight float64
}

// buildBreakdown はサブスコア群を重み付き合成してScoreBreakdownを生成する。
// 各サブスコアは合成前に[0, 100]へクランプされ、合計は小数第1位に丸められる。
func buildBreakdown(factors []weightedFactor, suggestions []string) model.ScoreBreakdown {
	details := make(map[string]float64, len(factors))
	total := 0.0
	for _, f := range factors {
		clamped := clamp(f.score)
		details[f.name] = clamped
		total += clamped * f.weight
	}

	score := round1(total)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return model.ScoreBreakdown{
		Score:       score,
		Label:       labelFor(score),
		Details:     details,
		Suggestions: suggestions,
	}
}

// clamp はスコアを[0, 100]に収める。
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// labelFor はスコアの序数ラベルを返す。
// 閾値は全スコアラー共通: 80以上excellent、65以上good、40以上regular。
func labelFor(score float64) model.ScoreLabel {
	switch {
	case score >= 80:
		return model.ScoreLabelExcellent
	case score >= 65:
		return model.ScoreLabelGood
	case score >= 40:
		return model.ScoreLabelRegular
	default:
		return model.ScoreLabelPoor
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// competitorMeanPrice は競合の正の価格の平均を返す。正の価格がなければ0。
func competitorMeanPrice(competitors []model.Listing) float64 {
	sum, n := 0.0, 0
	for _, c := range competitors {
		if c.Price > 0 {
			sum += c.Price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// priceTierScore は競合平均に対する価格比を5段階スコアに写像する。
func priceTierScore(ratio float64) float64 {
	switch {
	case ratio <= 0.85:
		return 100
	case ratio <= 1.0:
		return 85
	case ratio <= 1.1:
		return 65
	case ratio <= 1.25:
		return 45
	default:
		return 20
	}
}
