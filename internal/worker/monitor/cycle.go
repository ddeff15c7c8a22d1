package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/marketscope/internal/connector"
	"github.com/hitoshi/marketscope/internal/metrics"
	"github.com/hitoshi/marketscope/internal/model"
	"github.com/hitoshi/marketscope/internal/repository"
)

// CycleResult はサイクル1回の実行結果サマリー。
type CycleResult struct {
	RulesEvaluated   int
	ListingsChecked  int
	ListingFailures  int
	SnapshotsWritten int
	EventsEmitted    int
	EventsSuppressed int
}

// String は健全性表示用の結果サマリーを返す。
func (r CycleResult) String() string {
	return fmt.Sprintf("rules=%d listings=%d failures=%d snapshots=%d emitted=%d suppressed=%d",
		r.RulesEvaluated, r.ListingsChecked, r.ListingFailures,
		r.SnapshotsWritten, r.EventsEmitted, r.EventsSuppressed)
}

// Checker は監視サイクル1回分の変化検知とアラート発火を実行する。
// アクティブルールをワークスペース単位にまとめ、対象出品を再取得・
// ベースライン比較し、成立したルールのイベントを発火する。
type Checker struct {
	registry     *connector.Registry
	listingRepo  repository.ListingRepository
	snapshotRepo repository.SnapshotRepository
	ruleRepo     repository.AlertRuleRepository
	eventRepo    repository.AlertEventRepository
	collector    metrics.MetricsCollector
	logger       *slog.Logger

	dedupeWindow   time.Duration
	maxListings    int
	listingTimeout time.Duration
}

// NewChecker はCheckerを生成する。
// dedupeWindow/maxListingsが非正の場合は最小値に丸める（タイトループ回避）。
func NewChecker(
	registry *connector.Registry,
	listingRepo repository.ListingRepository,
	snapshotRepo repository.SnapshotRepository,
	ruleRepo repository.AlertRuleRepository,
	eventRepo repository.AlertEventRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	dedupeWindow time.Duration,
	maxListings int,
	listingTimeout time.Duration,
) *Checker {
	if dedupeWindow <= 0 {
		dedupeWindow = time.Hour
	}
	if maxListings <= 0 {
		maxListings = 1
	}
	if listingTimeout <= 0 {
		listingTimeout = 45 * time.Second
	}
	return &Checker{
		registry:       registry,
		listingRepo:    listingRepo,
		snapshotRepo:   snapshotRepo,
		ruleRepo:       ruleRepo,
		eventRepo:      eventRepo,
		collector:      collector,
		logger:         logger,
		dedupeWindow:   dedupeWindow,
		maxListings:    maxListings,
		listingTimeout: listingTimeout,
	}
}

// RunCycle は監視サイクルを1回実行する。
// 出品単位の失敗はログに記録して続行し、戻り値のエラーは
// ルール取得などサイクル自体を継続できない失敗のみに設定される。
func (c *Checker) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	start := time.Now()

	rules, err := c.ruleRepo.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("アクティブルールの取得に失敗しました: %w", err)
	}
	result.RulesEvaluated = len(rules)

	if len(rules) == 0 {
		c.logger.Info("アクティブなアラートルールはありません")
		return result, nil
	}

	for workspaceID, wsRules := range groupByWorkspace(rules) {
		listings, err := c.resolveListings(ctx, workspaceID, wsRules)
		if err != nil {
			c.logger.Error("監視対象出品の解決に失敗しました",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, listing := range listings {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			result.ListingsChecked++
			c.collector.RecordListingChecked()

			if err := c.checkListing(ctx, listing, wsRules, &result); err != nil {
				result.ListingFailures++
				c.collector.RecordListingCheckFailure()
				c.logger.Error("出品の確認に失敗しました",
					slog.String("listing_uuid", listing.ID),
					slog.String("external_id", listing.ExternalID),
					slog.String("marketplace", string(listing.Marketplace)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	c.logger.Info("監視サイクルが完了しました",
		slog.Int("rules", result.RulesEvaluated),
		slog.Int("listings_checked", result.ListingsChecked),
		slog.Int("failures", result.ListingFailures),
		slog.Int("snapshots_written", result.SnapshotsWritten),
		slog.Int("events_emitted", result.EventsEmitted),
		slog.Int("events_suppressed", result.EventsSuppressed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return result, nil
}

// groupByWorkspace はルールをワークスペースIDで分類する。
func groupByWorkspace(rules []*model.AlertRule) map[string][]*model.AlertRule {
	grouped := make(map[string][]*model.AlertRule)
	for _, rule := range rules {
		grouped[rule.WorkspaceID] = append(grouped[rule.WorkspaceID], rule)
	}
	return grouped
}

// resolveListings はワークスペースのルール群が参照する出品の集合を解決する。
// 明示的なlisting_idの出品に加え、ワークスペース全体ルールがある場合は
// 更新日時の新しい順に上限件数までの出品を対象に含める。
func (c *Checker) resolveListings(ctx context.Context, workspaceID string, rules []*model.AlertRule) ([]*model.TrackedListing, error) {
	var explicitIDs []string
	workspaceWide := false
	for _, rule := range rules {
		if rule.ListingID == "" {
			workspaceWide = true
		} else {
			explicitIDs = append(explicitIDs, rule.ListingID)
		}
	}

	seen := make(map[string]bool)
	var listings []*model.TrackedListing

	if len(explicitIDs) > 0 {
		explicit, err := c.listingRepo.FindByIDs(ctx, workspaceID, explicitIDs)
		if err != nil {
			return nil, fmt.Errorf("明示指定出品の取得に失敗しました: %w", err)
		}
		for _, l := range explicit {
			if !seen[l.ID] {
				seen[l.ID] = true
				listings = append(listings, l)
			}
		}
	}

	if workspaceWide {
		recent, err := c.listingRepo.ListRecentByWorkspace(ctx, workspaceID, c.maxListings)
		if err != nil {
			return nil, fmt.Errorf("ワークスペース出品の取得に失敗しました: %w", err)
		}
		for _, l := range recent {
			if !seen[l.ID] {
				seen[l.ID] = true
				listings = append(listings, l)
			}
		}
	}

	return listings, nil
}

// checkListing は出品1件を再取得してベースラインを比較し、
// 成立したルールのアラートイベントを発火する。
func (c *Checker) checkListing(ctx context.Context, tracked *model.TrackedListing, rules []*model.AlertRule, result *CycleResult) error {
	ctx, cancel := context.WithTimeout(ctx, c.listingTimeout)
	defer cancel()

	conn, ok := c.registry.Get(tracked.Marketplace)
	if !ok {
		return fmt.Errorf("未対応のマーケットプレイスです: %s", tracked.Marketplace)
	}

	raw, err := conn.GetListingDetails(ctx, tracked.ExternalID)
	if err != nil {
		return fmt.Errorf("出品の再取得に失敗しました: %w", err)
	}

	listing, err := conn.Normalize(raw)
	if err != nil {
		return fmt.Errorf("出品の正規化に失敗しました: %w", err)
	}

	baseline := ExtractBaseline(&listing, raw)

	// 前回スナップショットは挿入前に取得する（挿入後では自分自身が返る）
	previous, err := c.snapshotRepo.GetLatest(ctx, tracked.WorkspaceID, tracked.ID)
	if err != nil {
		return fmt.Errorf("直近スナップショットの取得に失敗しました: %w", err)
	}

	// scraped_atは観測のたびに変わるためスナップショット文書から除外する
	normalizedDoc := listing.ToMap()
	delete(normalizedDoc, "scraped_at")
	derivedDoc := map[string]any{"baseline": baseline}

	contentHash, err := ContentHash(raw, normalizedDoc, derivedDoc)
	if err != nil {
		return err
	}

	inserted, err := c.snapshotRepo.InsertIfChanged(ctx, &model.Snapshot{
		WorkspaceID:    tracked.WorkspaceID,
		ListingUUID:    tracked.ID,
		RawData:        raw,
		NormalizedData: normalizedDoc,
		DerivedData:    derivedDoc,
		ContentHash:    contentHash,
	})
	if err != nil {
		return fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}
	if inserted {
		result.SnapshotsWritten++
		c.collector.RecordSnapshotWritten()
	}

	// 初回観測はベースラインを確立するだけでアラートは発火しない
	if previous == nil {
		return nil
	}

	changes := DiffBaselines(baselineFromSnapshot(previous), baseline)
	if len(changes) == 0 {
		return nil
	}

	for _, rule := range rules {
		if rule.ListingID != "" && rule.ListingID != tracked.ID {
			continue
		}
		if !EvaluateCondition(rule.Condition, changes) {
			continue
		}
		if err := c.emitEvent(ctx, rule, tracked, changes, result); err != nil {
			return err
		}
	}

	return nil
}

// baselineFromSnapshot はスナップショットの派生データからベースラインを取り出す。
// JSONB往復後の表現（map[string]any）のまま返す。
func baselineFromSnapshot(snapshot *model.Snapshot) map[string]any {
	if snapshot.DerivedData == nil {
		return map[string]any{}
	}
	if baseline, ok := snapshot.DerivedData["baseline"].(map[string]any); ok {
		return baseline
	}
	return map[string]any{}
}

// emitEvent はdedupe windowを照合した上でアラートイベントを発火する。
// 同一署名のイベントがwindow内に存在する場合は抑制する。
func (c *Checker) emitEvent(ctx context.Context, rule *model.AlertRule, tracked *model.TrackedListing, changes map[string]FieldChange, result *CycleResult) error {
	signature, err := DedupeSignature(rule.ID, tracked.ID, changes)
	if err != nil {
		return err
	}

	since := time.Now().Add(-c.dedupeWindow)
	recent, err := c.eventRepo.ListRecent(ctx, rule.ID, tracked.ID, since)
	if err != nil {
		return fmt.Errorf("直近イベントの照合に失敗しました: %w", err)
	}
	for _, event := range recent {
		if event.DedupeSignature() == signature {
			result.EventsSuppressed++
			c.collector.RecordAlertSuppressed()
			c.logger.Info("同一変化のアラートを抑制しました",
				slog.String("rule_id", rule.ID),
				slog.String("listing_uuid", tracked.ID),
			)
			return nil
		}
	}

	event := &model.AlertEvent{
		ID:          uuid.New().String(),
		WorkspaceID: rule.WorkspaceID,
		RuleID:      rule.ID,
		ListingID:   tracked.ID,
		EventData: map[string]any{
			"field":            rule.Condition.Field,
			"operator":         string(rule.Condition.Operator),
			"changes":          changesToMap(changes),
			"dedupe_signature": signature,
		},
		TriggeredAt: time.Now(),
	}
	if err := c.eventRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("アラートイベントの作成に失敗しました: %w", err)
	}

	result.EventsEmitted++
	c.collector.RecordAlertEmitted()
	c.logger.Info("アラートイベントを発火しました",
		slog.String("rule_id", rule.ID),
		slog.String("listing_uuid", tracked.ID),
		slog.String("field", rule.Condition.Field),
		slog.String("operator", string(rule.Condition.Operator)),
	)

	return nil
}
