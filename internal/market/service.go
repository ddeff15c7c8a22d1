// Package market は市場調査と出品監査のアプリケーションサービスを提供する。
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/marketscope/internal/cache"
	"github.com/hitoshi/marketscope/internal/connector"
	"github.com/hitoshi/marketscope/internal/metrics"
	"github.com/hitoshi/marketscope/internal/model"
	"github.com/hitoshi/marketscope/internal/pipeline"
	"github.com/hitoshi/marketscope/internal/repository"
	"github.com/hitoshi/marketscope/internal/scoring"
)

// auditCompetitorLimit は監査時に収集する競合の上限。
const auditCompetitorLimit = 20

// Service は市場調査・出品監査のファサード。
// コネクタで収集し、パイプラインで集計し、スコアラーで採点する。
type Service struct {
	registry    *connector.Registry
	pipeline    *pipeline.Pipeline
	auditor     *scoring.Auditor
	listingRepo repository.ListingRepository
	cache       cache.Cache
	collector   metrics.MetricsCollector
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	registry *connector.Registry,
	p *pipeline.Pipeline,
	auditor *scoring.Auditor,
	listingRepo repository.ListingRepository,
	c cache.Cache,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry:    registry,
		pipeline:    p,
		auditor:     auditor,
		listingRepo: listingRepo,
		cache:       c,
		collector:   collector,
		logger:      logger,
	}
}

// researchCacheKey は調査結果のキャッシュキーを構築する。
// フィルタはキー順にソートして決定的にする。リクエストID等の
// 揮発値はキーに含めない。
func researchCacheKey(marketplace model.Marketplace, keyword string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(marketplace))
	b.WriteString(":")
	b.WriteString(strings.ToLower(keyword))
	for _, k := range keys {
		b.WriteString(":")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(filters[k])
	}
	return b.String()
}

// Research はキーワード市場調査を実行する。
// 結果はTTLキャッシュされ、同一条件の再調査はコネクタを呼ばずに返る。
// saveがtrueの場合、正規化済み出品をlistings_currentへUPSERTする。
func (s *Service) Research(ctx context.Context, workspaceID string, marketplace model.Marketplace, keyword string, filters map[string]string, save bool) (model.MarketResearchResult, error) {
	conn, ok := s.registry.Get(marketplace)
	if !ok {
		return model.MarketResearchResult{}, model.NewInvalidMarketplaceError(string(marketplace))
	}

	cacheKey := researchCacheKey(marketplace, keyword, filters)
	if data, hit := s.cache.Get(ctx, cacheKey); hit {
		var cached model.MarketResearchResult
		if err := json.Unmarshal(data, &cached); err == nil {
			s.collector.RecordResearchCacheHit()
			s.logger.Info("キャッシュから調査結果を返します",
				slog.String("keyword", keyword),
				slog.String("marketplace", string(marketplace)),
			)
			return cached, nil
		}
		// 壊れたエントリは無視して再調査する
		_ = s.cache.Delete(ctx, cacheKey)
	}
	s.collector.RecordResearchCacheMiss()

	start := time.Now()
	rawItems, err := conn.Search(ctx, keyword, filters)
	if err != nil {
		return model.MarketResearchResult{}, fmt.Errorf("市場調査の収集に失敗しました: %w", err)
	}

	listings := make([]model.Listing, 0, len(rawItems))
	for _, raw := range rawItems {
		listing, err := conn.Normalize(raw)
		if err != nil {
			s.logger.Warn("出品の正規化をスキップしました",
				slog.String("marketplace", string(marketplace)),
				slog.String("error", err.Error()),
			)
			continue
		}
		listings = append(listings, listing)
	}

	result := s.pipeline.Run(listings, keyword, marketplace)
	s.collector.RecordResearchLatency(time.Since(start))

	if data, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, cacheKey, data); err != nil {
			s.logger.Warn("調査結果のキャッシュ登録に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}

	if save {
		s.saveListings(ctx, workspaceID, result.Listings)
	}

	return result, nil
}

// saveListings は正規化済み出品をlistings_currentへUPSERTする。
// 個別の失敗はログに記録して続行する。
func (s *Service) saveListings(ctx context.Context, workspaceID string, listings []model.Listing) {
	saved := 0
	for i := range listings {
		l := &listings[i]
		tracked := &model.TrackedListing{
			WorkspaceID: workspaceID,
			Marketplace: l.Marketplace,
			ExternalID:  l.ListingID,
			Title:       l.Title,
		}
		if _, err := s.listingRepo.Upsert(ctx, tracked, nil, l.ToMap(), nil); err != nil {
			s.logger.Error("出品のUPSERTに失敗しました",
				slog.String("listing_id", l.ListingID),
				slog.String("error", err.Error()),
			)
			continue
		}
		saved++
	}
	s.logger.Info("調査結果の出品を保存しました",
		slog.String("workspace_id", workspaceID),
		slog.Int("saved", saved),
	)
}

// Audit は出品1件の総合監査を実行する。
// keywordが与えられた場合は同条件の市場調査で競合を収集し、
// 空の場合は出品タイトルを検索キーワードとして使用する。
func (s *Service) Audit(ctx context.Context, workspaceID string, marketplace model.Marketplace, listingID, keyword string) (model.AuditResult, error) {
	conn, ok := s.registry.Get(marketplace)
	if !ok {
		return model.AuditResult{}, model.NewInvalidMarketplaceError(string(marketplace))
	}

	raw, err := conn.GetListingDetails(ctx, listingID)
	if err != nil {
		return model.AuditResult{}, fmt.Errorf("監査対象の取得に失敗しました: %w", err)
	}

	listing, err := conn.Normalize(raw)
	if err != nil {
		return model.AuditResult{}, fmt.Errorf("監査対象の正規化に失敗しました: %w", err)
	}

	if keyword == "" {
		keyword = listing.Title
	}

	competitors := s.collectCompetitors(ctx, workspaceID, marketplace, keyword, listingID)
	return s.auditor.Audit(&listing, competitors), nil
}

// collectCompetitors は監査用の競合バッチを収集する。
// 収集失敗は監査を妨げない（空の競合で中立スコアに縮退する）。
func (s *Service) collectCompetitors(ctx context.Context, workspaceID string, marketplace model.Marketplace, keyword, excludeID string) []model.Listing {
	result, err := s.Research(ctx, workspaceID, marketplace, keyword, nil, false)
	if err != nil {
		s.logger.Warn("競合の収集に失敗しました。中立スコアで監査します",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		return nil
	}

	competitors := make([]model.Listing, 0, len(result.Listings))
	for _, l := range result.Listings {
		if l.ListingID == excludeID {
			continue
		}
		competitors = append(competitors, l)
		if len(competitors) >= auditCompetitorLimit {
			break
		}
	}
	return competitors
}
