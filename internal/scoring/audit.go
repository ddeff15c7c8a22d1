package scoring

import (
	"time"

	"github.com/hitoshi/marketscope/internal/model"
)

// 総合監査の重み。SEOを最重視し、コンバージョン、競争力の順。
const (
	auditWeightSEO             = 0.40
	auditWeightConversion      = 0.35
	auditWeightCompetitiveness = 0.25
)

// maxTopActions は総合監査が保持する優先アクション数の上限。
const maxTopActions = 6

// Auditor は3つのスコアラーを束ねて出品の総合監査を行う。
type Auditor struct {
	seo             *SEOScorer
	conversion      *ConversionScorer
	competitiveness *CompetitivenessScorer
}

// NewAuditor はAuditorを生成する。
func NewAuditor() *Auditor {
	return &Auditor{
		seo:             NewSEOScorer(),
		conversion:      NewConversionScorer(),
		competitiveness: NewCompetitivenessScorer(),
	}
}

// Audit は出品を3軸で採点し、重み付き総合スコアと優先アクションを返す。
// 優先アクションは各スコアラーの提案をスコアの低い軸から順に集める。
func (a *Auditor) Audit(listing *model.Listing, competitors []model.Listing) model.AuditResult {
	seo := a.seo.Score(listing, competitors)
	conversion := a.conversion.Score(listing, competitors)
	competitiveness := a.competitiveness.Score(listing, competitors)

	overall := round1(
		seo.Score*auditWeightSEO +
			conversion.Score*auditWeightConversion +
			competitiveness.Score*auditWeightCompetitiveness,
	)

	return model.AuditResult{
		ListingID:       listing.ListingID,
		Marketplace:     listing.Marketplace,
		SEO:             seo,
		Conversion:      conversion,
		Competitiveness: competitiveness,
		OverallScore:    overall,
		TopActions:      topActions(seo, conversion, competitiveness),
		AuditedAt:       time.Now(),
	}
}

// topActions はスコアの低い軸の提案を優先して上限件数まで集める。
func topActions(breakdowns ...model.ScoreBreakdown) []string {
	// 軸が少ないため挿入ソートで十分
	sorted := make([]model.ScoreBreakdown, len(breakdowns))
	copy(sorted, breakdowns)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Score < sorted[j-1].Score; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var actions []string
	for _, b := range sorted {
		for _, s := range b.Suggestions {
			if len(actions) >= maxTopActions {
				return actions
			}
			actions = append(actions, s)
		}
	}
	return actions
}
