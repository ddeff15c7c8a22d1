package pipeline

import (
	"log/slog"

	"github.com/hitoshi/marketscope/internal/model"
)

// Pipeline は収集済み出品を市場調査結果に変換するファサード。
// 重複排除 → 補完 → 集計の順に処理する。
type Pipeline struct {
	logger *slog.Logger
}

// New はPipelineを生成する。
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Run は生の出品バッチを処理して市場調査結果を返す。
func (p *Pipeline) Run(rawListings []model.Listing, keyword string, marketplace model.Marketplace) model.MarketResearchResult {
	unique := Dedup(rawListings)
	if removed := len(rawListings) - len(unique); removed > 0 {
		p.logger.Info("重複出品を除去しました",
			slog.Int("removed", removed),
			slog.Int("remaining", len(unique)),
		)
	}

	enriched := Enrich(unique)
	result := Aggregate(enriched, keyword, marketplace)

	p.logger.Info("市場集計が完了しました",
		slog.String("keyword", keyword),
		slog.String("marketplace", string(marketplace)),
		slog.Int("total_collected", result.TotalCollected),
		slog.Int("gaps", len(result.Gaps)),
	)

	return result
}
