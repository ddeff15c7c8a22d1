package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/marketscope/internal/connector"
	"github.com/hitoshi/marketscope/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// nopCollector はテスト用のメトリクスコレクタ。
type nopCollector struct{}

func (nopCollector) RecordMonitorCycle(string)           {}
func (nopCollector) RecordListingChecked()               {}
func (nopCollector) RecordListingCheckFailure()          {}
func (nopCollector) RecordSnapshotWritten()              {}
func (nopCollector) RecordAlertEmitted()                 {}
func (nopCollector) RecordAlertSuppressed()              {}
func (nopCollector) RecordResearchCacheHit()             {}
func (nopCollector) RecordResearchCacheMiss()            {}
func (nopCollector) RecordResearchLatency(time.Duration) {}

// fakeConnector は固定の生データを返すコネクタ。
// detailsErrに登録されたIDの詳細取得は失敗する。
type fakeConnector struct {
	raw        map[string]any
	detailsErr map[string]error
}

func (f *fakeConnector) Marketplace() model.Marketplace { return model.MarketplaceMercadoLivre }

func (f *fakeConnector) Search(_ context.Context, _ string, _ map[string]string) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeConnector) GetListingDetails(_ context.Context, id string) (map[string]any, error) {
	if err, ok := f.detailsErr[id]; ok {
		return nil, err
	}
	return f.raw, nil
}

func (f *fakeConnector) Normalize(raw map[string]any) (model.Listing, error) {
	title, _ := raw["title"].(string)
	price, _ := raw["price"].(float64)
	freeShipping, _ := raw["free_shipping"].(bool)
	return model.Listing{
		Marketplace: model.MarketplaceMercadoLivre,
		ListingID:   "MLB1",
		Title:       title,
		Price:       price,
		Badges:      model.Badges{FreeShipping: freeShipping},
		ScrapedAt:   time.Now(),
	}, nil
}

// fakeListingRepo は固定の監視対象出品を返す。
type fakeListingRepo struct {
	listings []*model.TrackedListing
}

func (f *fakeListingRepo) FindByID(_ context.Context, id string) (*model.TrackedListing, error) {
	for _, l := range f.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeListingRepo) FindByIDs(_ context.Context, workspaceID string, ids []string) ([]*model.TrackedListing, error) {
	var result []*model.TrackedListing
	for _, id := range ids {
		for _, l := range f.listings {
			if l.ID == id && l.WorkspaceID == workspaceID {
				result = append(result, l)
			}
		}
	}
	return result, nil
}

func (f *fakeListingRepo) ListRecentByWorkspace(_ context.Context, _ string, limit int) ([]*model.TrackedListing, error) {
	if len(f.listings) > limit {
		return f.listings[:limit], nil
	}
	return f.listings, nil
}

func (f *fakeListingRepo) Upsert(_ context.Context, listing *model.TrackedListing, _, _, _ map[string]any) (string, error) {
	return listing.ID, nil
}

// fakeSnapshotRepo は出品ごとの直近スナップショットをメモリに保持する。
// 実装と同様に(workspace_id, listing_uuid)で直近を引く。
type fakeSnapshotRepo struct {
	latest  map[string]*model.Snapshot
	inserts int
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{latest: make(map[string]*model.Snapshot)}
}

func snapshotKey(workspaceID, listingUUID string) string {
	return workspaceID + "/" + listingUUID
}

func (f *fakeSnapshotRepo) GetLatest(_ context.Context, workspaceID, listingUUID string) (*model.Snapshot, error) {
	return f.latest[snapshotKey(workspaceID, listingUUID)], nil
}

func (f *fakeSnapshotRepo) InsertIfChanged(_ context.Context, snapshot *model.Snapshot) (bool, error) {
	key := snapshotKey(snapshot.WorkspaceID, snapshot.ListingUUID)
	if prev, ok := f.latest[key]; ok && prev.ContentHash == snapshot.ContentHash {
		return false, nil
	}
	f.latest[key] = snapshot
	f.inserts++
	return true, nil
}

// fakeRuleRepo は固定のルールリストを返す。
type fakeRuleRepo struct {
	rules []*model.AlertRule
}

func (f *fakeRuleRepo) FindByID(_ context.Context, _ string) (*model.AlertRule, error) {
	return nil, nil
}

func (f *fakeRuleRepo) ListActive(_ context.Context) ([]*model.AlertRule, error) {
	return f.rules, nil
}

func (f *fakeRuleRepo) ListByWorkspace(_ context.Context, _ string) ([]*model.AlertRule, error) {
	return f.rules, nil
}

func (f *fakeRuleRepo) Create(_ context.Context, _ *model.AlertRule) error  { return nil }
func (f *fakeRuleRepo) SetActive(_ context.Context, _ string, _ bool) error { return nil }
func (f *fakeRuleRepo) Delete(_ context.Context, _ string) error            { return nil }

// fakeEventRepo は作成されたイベントをメモリに保持する。
type fakeEventRepo struct {
	events []*model.AlertEvent
}

func (f *fakeEventRepo) Create(_ context.Context, event *model.AlertEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) ListRecent(_ context.Context, ruleID, listingID string, since time.Time) ([]*model.AlertEvent, error) {
	var result []*model.AlertEvent
	for _, e := range f.events {
		if e.RuleID == ruleID && e.ListingID == listingID && !e.TriggeredAt.Before(since) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeEventRepo) ListByWorkspace(_ context.Context, _ string, _ int) ([]*model.AlertEvent, error) {
	return f.events, nil
}

func newTestChecker(conn connector.Connector, snapshots *fakeSnapshotRepo, rules *fakeRuleRepo, events *fakeEventRepo) *Checker {
	listings := &fakeListingRepo{listings: []*model.TrackedListing{
		{ID: "uuid-1", WorkspaceID: "ws1", Marketplace: model.MarketplaceMercadoLivre, ExternalID: "MLB1"},
	}}
	return NewChecker(
		connector.NewRegistry(conn),
		listings, snapshots, rules, events,
		nopCollector{}, testLogger(),
		6*time.Hour, 100, 45*time.Second,
	)
}

func priceRule(threshold float64, operator model.AlertOperator) *model.AlertRule {
	return &model.AlertRule{
		ID:          "rule-1",
		WorkspaceID: "ws1",
		ListingID:   "uuid-1",
		Condition: model.AlertCondition{
			Field:     "price",
			Operator:  operator,
			Threshold: threshold,
		},
		IsActive: true,
	}
}

// ベースラインが監視可能フィールドのみを含むことを検証
func TestExtractBaseline(t *testing.T) {
	listing := model.Listing{
		Title:        "Sofá Retrátil",
		Price:        1299.90,
		ShippingCost: 50,
		Badges:       model.Badges{FreeShipping: true},
		TextBlocks:   model.TextBlocks{Description: "volátil"},
		ScrapedAt:    time.Now(),
	}

	baseline := ExtractBaseline(&listing, map[string]any{})

	if baseline["price"] != 1299.90 || baseline["title"] != "Sofá Retrátil" {
		t.Errorf("baseline = %+v", baseline)
	}
	if baseline["free_shipping"] != true {
		t.Error("free_shipping flag should be in baseline")
	}
	if _, ok := baseline["description"]; ok {
		t.Error("description is volatile and must not be in baseline")
	}
	if _, ok := baseline["scraped_at"]; ok {
		t.Error("timestamps must not be in baseline")
	}
}

// バリエーション識別子がソート・重複排除され決定的であることを検証
func TestVariationTokens(t *testing.T) {
	raw := map[string]any{
		"variations": []any{
			map[string]any{"id": "B", "color": "azul"},
			map[string]any{"id": "A", "color": "cinza"},
			map[string]any{"id": "B", "color": "azul"},
		},
	}

	tokens := variationTokens(raw)
	if len(tokens) != 2 || tokens[0] != "A" || tokens[1] != "B" {
		t.Errorf("tokens = %v, want [A B]", tokens)
	}

	// idのないバリエーションはキーソート済みJSONで識別される
	noID := variationTokens(map[string]any{
		"variations": []any{
			map[string]any{"color": "azul", "size": "G"},
		},
	})
	again := variationTokens(map[string]any{
		"variations": []any{
			map[string]any{"size": "G", "color": "azul"},
		},
	})
	if len(noID) != 1 || noID[0] != again[0] {
		t.Errorf("tokens should be deterministic: %v vs %v", noID, again)
	}
}

// ベースライン差分の検出を検証
func TestDiffBaselines(t *testing.T) {
	previous := map[string]any{"price": 100.0, "title": "Sofá", "free_shipping": true}
	current := map[string]any{"price": 85.0, "title": "Sofá", "free_shipping": true}

	changes := DiffBaselines(previous, current)
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want only price", changes)
	}
	if changes["price"].Old != 100.0 || changes["price"].New != 85.0 {
		t.Errorf("price change = %+v", changes["price"])
	}

	if len(DiffBaselines(current, current)) != 0 {
		t.Error("identical baselines should produce no changes")
	}
}

// 条件演算子の評価を検証（100→85は-15%で発火、100→95は-5%で発火しない）
func TestEvaluateCondition(t *testing.T) {
	drop15 := map[string]FieldChange{"price": {Old: 100.0, New: 85.0}}
	drop5 := map[string]FieldChange{"price": {Old: 100.0, New: 95.0}}

	cond := model.AlertCondition{Field: "price", Operator: model.OperatorDecreasedByPct, Threshold: 10}
	if !EvaluateCondition(cond, drop15) {
		t.Error("100→85 (-15%) should fire decreased_by_pct=10")
	}
	if EvaluateCondition(cond, drop5) {
		t.Error("100→95 (-5%) should not fire decreased_by_pct=10")
	}

	up := model.AlertCondition{Field: "price", Operator: model.OperatorIncreasedByPct, Threshold: 10}
	if EvaluateCondition(up, drop15) {
		t.Error("price drop should not fire increased_by_pct")
	}
	if !EvaluateCondition(up, map[string]FieldChange{"price": {Old: 100.0, New: 120.0}}) {
		t.Error("100→120 (+20%) should fire increased_by_pct=10")
	}

	changed := model.AlertCondition{Field: "title", Operator: model.OperatorChanged}
	if !EvaluateCondition(changed, map[string]FieldChange{"title": {Old: "a", New: "b"}}) {
		t.Error("changed should fire on any inequality")
	}
	if EvaluateCondition(changed, drop15) {
		t.Error("changed should not fire for a different field")
	}
}

// 旧値ゼロのペアが決して発火しないことを検証（ゼロ除算回避）
func TestEvaluateConditionZeroPrevious(t *testing.T) {
	cond := model.AlertCondition{Field: "price", Operator: model.OperatorDecreasedByPct, Threshold: 10}
	if EvaluateCondition(cond, map[string]FieldChange{"price": {Old: 0.0, New: 50.0}}) {
		t.Error("zero previous value must never fire percentage operators")
	}
	if EvaluateCondition(cond, map[string]FieldChange{"price": {Old: nil, New: 50.0}}) {
		t.Error("nil previous value must never fire percentage operators")
	}
}

// dedupe signatureが変化集合に対して決定的であることを検証
func TestDedupeSignature(t *testing.T) {
	changes := map[string]FieldChange{
		"price": {Old: 100.0, New: 85.0},
		"title": {Old: "a", New: "b"},
	}

	sig1, err := DedupeSignature("rule-1", "uuid-1", changes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig2, _ := DedupeSignature("rule-1", "uuid-1", changes)
	if sig1 != sig2 {
		t.Error("same changes should produce the same signature")
	}

	other, _ := DedupeSignature("rule-2", "uuid-1", changes)
	if sig1 == other {
		t.Error("different rules should produce different signatures")
	}
}

// 初回観測がベースラインを確立するだけでアラートを発火しないことを検証
func TestRunCycle_FirstObservationIsSilent(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	snapshots := newFakeSnapshotRepo()
	events := &fakeEventRepo{}
	checker := newTestChecker(conn, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{
		priceRule(10, model.OperatorDecreasedByPct),
	}}, events)

	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SnapshotsWritten != 1 {
		t.Errorf("SnapshotsWritten = %d, want 1", result.SnapshotsWritten)
	}
	if len(events.events) != 0 {
		t.Errorf("first observation emitted %d events, want 0", len(events.events))
	}
}

// 価格下落でアラートが発火し、同一変化の再観測が抑制されることを検証
func TestRunCycle_PriceDropFiresOnce(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	snapshots := newFakeSnapshotRepo()
	events := &fakeEventRepo{}
	checker := newTestChecker(conn, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{
		priceRule(10, model.OperatorDecreasedByPct),
	}}, events)

	// 初回観測でベースライン確立
	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 価格が100→85に下落（-15%）
	conn.raw = map[string]any{"title": "Sofá", "price": 85.0}
	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventsEmitted != 1 {
		t.Errorf("EventsEmitted = %d, want 1", result.EventsEmitted)
	}
	if len(events.events) != 1 {
		t.Fatalf("events = %d, want 1", len(events.events))
	}
	if events.events[0].DedupeSignature() == "" {
		t.Error("event should carry a dedupe signature")
	}

	// 同じ変化の再観測: スナップショットは同一なので差分なし
	result, err = checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventsEmitted != 0 {
		t.Errorf("EventsEmitted = %d, want 0 on unchanged re-observation", result.EventsEmitted)
	}
}

// dedupe window内の同一差分の再発がちょうど1イベントに抑制されることを検証
func TestRunCycle_DedupeWindowSuppressesRepeat(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	snapshots := newFakeSnapshotRepo()
	events := &fakeEventRepo{}
	checker := newTestChecker(conn, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{
		priceRule(10, model.OperatorDecreasedByPct),
	}}, events)

	// ベースライン確立 → 下落で1回目の発火
	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn.raw = map[string]any{"title": "Sofá", "price": 85.0}
	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 価格が戻ってから再び同じ下落（100→85）: 署名が一致するため抑制される
	conn.raw = map[string]any{"title": "Sofá", "price": 100.0}
	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn.raw = map[string]any{"title": "Sofá", "price": 85.0}
	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.EventsSuppressed != 1 {
		t.Errorf("EventsSuppressed = %d, want 1", result.EventsSuppressed)
	}
	if len(events.events) != 1 {
		t.Errorf("events = %d, want exactly 1 for repeated identical diff", len(events.events))
	}
}

// 小幅な価格変動では発火しないことを検証
func TestRunCycle_SmallDropDoesNotFire(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	snapshots := newFakeSnapshotRepo()
	events := &fakeEventRepo{}
	checker := newTestChecker(conn, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{
		priceRule(10, model.OperatorDecreasedByPct),
	}}, events)

	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 100→95は-5%で閾値10%に届かない
	conn.raw = map[string]any{"title": "Sofá", "price": 95.0}
	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventsEmitted != 0 {
		t.Errorf("EventsEmitted = %d, want 0 for -5%% with threshold 10%%", result.EventsEmitted)
	}
	// スナップショットは変化したので書き込まれる
	if result.SnapshotsWritten != 1 {
		t.Errorf("SnapshotsWritten = %d, want 1", result.SnapshotsWritten)
	}
}

// 同一コンテンツのスナップショットが重複保存されないことを検証
func TestRunCycle_UnchangedContentWritesNoSnapshot(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	snapshots := newFakeSnapshotRepo()
	events := &fakeEventRepo{}
	checker := newTestChecker(conn, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{
		priceRule(10, model.OperatorDecreasedByPct),
	}}, events)

	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SnapshotsWritten != 0 {
		t.Errorf("SnapshotsWritten = %d, want 0 for unchanged content", result.SnapshotsWritten)
	}
	if snapshots.inserts != 1 {
		t.Errorf("inserts = %d, want 1", snapshots.inserts)
	}
}

// ワークスペース全体ルール（listing_id空）が最近の出品に適用されることを検証
func TestRunCycle_WorkspaceWideRule(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	snapshots := newFakeSnapshotRepo()
	events := &fakeEventRepo{}
	rule := priceRule(10, model.OperatorDecreasedByPct)
	rule.ListingID = "" // ワークスペース全体
	checker := newTestChecker(conn, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{rule}}, events)

	if _, err := checker.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.raw = map[string]any{"title": "Sofá", "price": 85.0}
	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventsEmitted != 1 {
		t.Errorf("EventsEmitted = %d, want 1 for workspace-wide rule", result.EventsEmitted)
	}
}

// コネクタ失敗が他の出品の確認を妨げないことを検証
func TestRunCycle_ListingFailureDoesNotAbortCycle(t *testing.T) {
	conn := &fakeConnector{
		raw:        map[string]any{"title": "Sofá", "price": 100.0},
		detailsErr: map[string]error{"MLB1": errors.New("HTTP 502")},
	}
	listings := &fakeListingRepo{listings: []*model.TrackedListing{
		{ID: "uuid-1", WorkspaceID: "ws1", Marketplace: model.MarketplaceMercadoLivre, ExternalID: "MLB1"},
		{ID: "uuid-2", WorkspaceID: "ws1", Marketplace: model.MarketplaceMercadoLivre, ExternalID: "MLB2"},
	}}
	snapshots := newFakeSnapshotRepo()
	rule := priceRule(10, model.OperatorDecreasedByPct)
	rule.ListingID = "" // ワークスペース全体
	checker := NewChecker(
		connector.NewRegistry(conn),
		listings, snapshots, &fakeRuleRepo{rules: []*model.AlertRule{rule}}, &fakeEventRepo{},
		nopCollector{}, testLogger(),
		6*time.Hour, 100, 45*time.Second,
	)

	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("listing failure must not abort the cycle: %v", err)
	}
	if result.ListingsChecked != 2 {
		t.Errorf("ListingsChecked = %d, want 2", result.ListingsChecked)
	}
	if result.ListingFailures != 1 {
		t.Errorf("ListingFailures = %d, want 1", result.ListingFailures)
	}
	// 失敗した出品以外は処理が継続しスナップショットが書き込まれる
	if result.SnapshotsWritten != 1 {
		t.Errorf("SnapshotsWritten = %d, want 1", result.SnapshotsWritten)
	}
}

// 直近スナップショットの参照がワークスペース単位で分離されていることを検証
func TestRunCycle_SnapshotsScopedPerWorkspace(t *testing.T) {
	conn := &fakeConnector{raw: map[string]any{"title": "Sofá", "price": 100.0}}
	listings := &fakeListingRepo{listings: []*model.TrackedListing{
		{ID: "uuid-1", WorkspaceID: "ws1", Marketplace: model.MarketplaceMercadoLivre, ExternalID: "MLB1"},
		{ID: "uuid-1", WorkspaceID: "ws2", Marketplace: model.MarketplaceMercadoLivre, ExternalID: "MLB1"},
	}}
	snapshots := newFakeSnapshotRepo()
	ruleWs2 := priceRule(10, model.OperatorDecreasedByPct)
	ruleWs2.ID = "rule-2"
	ruleWs2.WorkspaceID = "ws2"
	checker := NewChecker(
		connector.NewRegistry(conn),
		listings, snapshots,
		&fakeRuleRepo{rules: []*model.AlertRule{
			priceRule(10, model.OperatorDecreasedByPct),
			ruleWs2,
		}},
		&fakeEventRepo{},
		nopCollector{}, testLogger(),
		6*time.Hour, 100, 45*time.Second,
	)

	result, err := checker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 同一コンテンツでも各ワークスペースが自前のスナップショットを持つ
	if result.SnapshotsWritten != 2 {
		t.Errorf("SnapshotsWritten = %d, want one per workspace", result.SnapshotsWritten)
	}
	if snapshots.inserts != 2 {
		t.Errorf("inserts = %d, want 2", snapshots.inserts)
	}
}

// 健全性状態の記録とスナップショット取得を検証
func TestHealth(t *testing.T) {
	h := NewHealth()

	status := h.Snapshot()
	if status.Active || status.CycleCount != 0 {
		t.Errorf("initial status = %+v", status)
	}

	h.SetActive(true)
	h.RecordCycle(SourceScheduled, "rules=1 listings=1", nil)
	h.RecordCycle(SourceManual, "rules=1 listings=1", nil)

	status = h.Snapshot()
	if !status.Active {
		t.Error("Active should be true")
	}
	if status.CycleCount != 2 {
		t.Errorf("CycleCount = %d, want 2", status.CycleCount)
	}
	if status.LastSource != SourceManual {
		t.Errorf("LastSource = %q, want manual", status.LastSource)
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
}
