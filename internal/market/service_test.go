package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/marketscope/internal/cache"
	"github.com/hitoshi/marketscope/internal/connector"
	"github.com/hitoshi/marketscope/internal/metrics"
	"github.com/hitoshi/marketscope/internal/model"
	"github.com/hitoshi/marketscope/internal/pipeline"
	"github.com/hitoshi/marketscope/internal/scoring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConnector はテスト用のコネクタ。検索・詳細取得の結果を固定で返す。
type fakeConnector struct {
	marketplace  model.Marketplace
	searchCalls  int
	searchItems  []map[string]any
	searchErr    error
	detailsItem  map[string]any
	detailsErr   error
	normalizeErr map[string]error
}

func (f *fakeConnector) Marketplace() model.Marketplace { return f.marketplace }

func (f *fakeConnector) Search(_ context.Context, _ string, _ map[string]string) ([]map[string]any, error) {
	f.searchCalls++
	return f.searchItems, f.searchErr
}

func (f *fakeConnector) GetListingDetails(_ context.Context, _ string) (map[string]any, error) {
	return f.detailsItem, f.detailsErr
}

func (f *fakeConnector) Normalize(raw map[string]any) (model.Listing, error) {
	id, _ := raw["id"].(string)
	if err, ok := f.normalizeErr[id]; ok {
		return model.Listing{}, err
	}
	title, _ := raw["title"].(string)
	price, _ := raw["price"].(float64)
	return model.Listing{
		Marketplace:        f.marketplace,
		ListingID:          id,
		Title:              title,
		Price:              price,
		FinalPriceEstimate: price,
		ScrapedAt:          time.Now(),
	}, nil
}

// fakeListingRepo はUPSERT呼び出しを記録するリポジトリ。
type fakeListingRepo struct {
	upserted []string
}

func (f *fakeListingRepo) FindByID(_ context.Context, _ string) (*model.TrackedListing, error) {
	return nil, nil
}

func (f *fakeListingRepo) FindByIDs(_ context.Context, _ string, _ []string) ([]*model.TrackedListing, error) {
	return nil, nil
}

func (f *fakeListingRepo) ListRecentByWorkspace(_ context.Context, _ string, _ int) ([]*model.TrackedListing, error) {
	return nil, nil
}

func (f *fakeListingRepo) Upsert(_ context.Context, listing *model.TrackedListing, _, _, _ map[string]any) (string, error) {
	f.upserted = append(f.upserted, listing.ExternalID)
	return "uuid-" + listing.ExternalID, nil
}

// nopCollector は計測を無視するコレクタ。
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

var _ metrics.MetricsCollector = nopCollector{}

func newTestService(conn connector.Connector, repo *fakeListingRepo) *Service {
	return NewService(
		connector.NewRegistry(conn),
		pipeline.New(testLogger()),
		scoring.NewAuditor(),
		repo,
		cache.NewMemoryCache(16, time.Minute),
		nopCollector{},
		testLogger(),
	)
}

// 調査がコネクタ→パイプラインを通り、結果がキャッシュされることを検証
func TestService_ResearchCachesResult(t *testing.T) {
	conn := &fakeConnector{
		marketplace: model.MarketplaceMercadoLivre,
		searchItems: []map[string]any{
			{"id": "MLB1", "title": "Sofá Retrátil", "price": 100.0},
			{"id": "MLB2", "title": "Sofá de Canto", "price": 200.0},
		},
	}
	s := newTestService(conn, &fakeListingRepo{})

	result, err := s.Research(context.Background(), "ws1", model.MarketplaceMercadoLivre, "sofá", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalCollected != 2 {
		t.Errorf("TotalCollected = %d, want 2", result.TotalCollected)
	}
	if result.PriceRange.Min != 100 || result.PriceRange.Max != 200 {
		t.Errorf("PriceRange = %+v", result.PriceRange)
	}

	// 2回目はキャッシュから返りコネクタは呼ばれない
	cached, err := s.Research(context.Background(), "ws1", model.MarketplaceMercadoLivre, "sofá", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.searchCalls != 1 {
		t.Errorf("searchCalls = %d, want 1", conn.searchCalls)
	}
	if cached.TotalCollected != 2 {
		t.Errorf("cached TotalCollected = %d, want 2", cached.TotalCollected)
	}
}

// フィルタ差・大文字小文字差でキャッシュキーが区別されることを検証
func TestResearchCacheKey(t *testing.T) {
	base := researchCacheKey(model.MarketplaceMercadoLivre, "Sofá", nil)
	lower := researchCacheKey(model.MarketplaceMercadoLivre, "sofá", nil)
	if base != lower {
		t.Errorf("keyword case should not change key: %q vs %q", base, lower)
	}

	filtered := researchCacheKey(model.MarketplaceMercadoLivre, "sofá", map[string]string{"category": "MLB1889"})
	if filtered == base {
		t.Error("filters should change the cache key")
	}

	// フィルタの列挙順に依存しない
	a := researchCacheKey(model.MarketplaceMercadoLivre, "sofá", map[string]string{"a": "1", "b": "2"})
	b := researchCacheKey(model.MarketplaceMercadoLivre, "sofá", map[string]string{"b": "2", "a": "1"})
	if a != b {
		t.Errorf("key should be deterministic: %q vs %q", a, b)
	}
}

// 正規化に失敗した出品がスキップされ残りが処理されることを検証
func TestService_ResearchSkipsFailedNormalization(t *testing.T) {
	conn := &fakeConnector{
		marketplace: model.MarketplaceMercadoLivre,
		searchItems: []map[string]any{
			{"id": "MLB1", "title": "Sofá", "price": 100.0},
			{"id": "MLB2", "title": "Quebrado", "price": 50.0},
		},
		normalizeErr: map[string]error{"MLB2": errors.New("campo ausente")},
	}
	s := newTestService(conn, &fakeListingRepo{})

	result, err := s.Research(context.Background(), "ws1", model.MarketplaceMercadoLivre, "sofá", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalCollected != 1 {
		t.Errorf("TotalCollected = %d, want 1", result.TotalCollected)
	}
}

// 未対応マーケットプレイスでAPIエラーが返ることを検証
func TestService_ResearchUnknownMarketplace(t *testing.T) {
	conn := &fakeConnector{marketplace: model.MarketplaceMercadoLivre}
	s := newTestService(conn, &fakeListingRepo{})

	_, err := s.Research(context.Background(), "ws1", model.MarketplaceMagalu, "sofá", nil, false)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

// save=trueで正規化済み出品がUPSERTされることを検証
func TestService_ResearchSavesListings(t *testing.T) {
	conn := &fakeConnector{
		marketplace: model.MarketplaceMercadoLivre,
		searchItems: []map[string]any{
			{"id": "MLB1", "title": "Sofá Retrátil", "price": 100.0},
			{"id": "MLB2", "title": "Sofá de Canto", "price": 200.0},
		},
	}
	repo := &fakeListingRepo{}
	s := newTestService(conn, repo)

	if _, err := s.Research(context.Background(), "ws1", model.MarketplaceMercadoLivre, "sofá", nil, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.upserted) != 2 {
		t.Errorf("upserted = %v, want 2 listings", repo.upserted)
	}
}

// 監査が詳細取得→競合収集→採点の順で完了することを検証
func TestService_Audit(t *testing.T) {
	conn := &fakeConnector{
		marketplace: model.MarketplaceMercadoLivre,
		detailsItem: map[string]any{"id": "MLB1", "title": "Sofá Retrátil Reclinável 3 Lugares", "price": 150.0},
		searchItems: []map[string]any{
			{"id": "MLB1", "title": "Sofá Retrátil Reclinável 3 Lugares", "price": 150.0},
			{"id": "MLB2", "title": "Sofá de Canto", "price": 200.0},
		},
	}
	s := newTestService(conn, &fakeListingRepo{})

	result, err := s.Audit(context.Background(), "ws1", model.MarketplaceMercadoLivre, "MLB1", "sofá")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ListingID != "MLB1" {
		t.Errorf("ListingID = %q", result.ListingID)
	}
	if result.OverallScore < 0 || result.OverallScore > 100 {
		t.Errorf("OverallScore = %v, out of range", result.OverallScore)
	}
	if len(result.TopActions) == 0 {
		t.Error("TopActions should not be empty for a weak listing")
	}
}

// 競合収集に失敗しても監査自体は完了することを検証
func TestService_AuditDegradesWithoutCompetitors(t *testing.T) {
	conn := &fakeConnector{
		marketplace: model.MarketplaceMercadoLivre,
		detailsItem: map[string]any{"id": "MLB1", "title": "Sofá Retrátil", "price": 150.0},
		searchErr:   errors.New("timeout"),
	}
	s := newTestService(conn, &fakeListingRepo{})

	result, err := s.Audit(context.Background(), "ws1", model.MarketplaceMercadoLivre, "MLB1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Competitiveness.Score != 50 {
		t.Errorf("Competitiveness.Score = %v, want neutral 50", result.Competitiveness.Score)
	}
}

// 詳細取得失敗で監査がエラーになることを検証
func TestService_AuditDetailsFailure(t *testing.T) {
	conn := &fakeConnector{
		marketplace: model.MarketplaceMercadoLivre,
		detailsErr:  errors.New("404"),
	}
	s := newTestService(conn, &fakeListingRepo{})

	if _, err := s.Audit(context.Background(), "ws1", model.MarketplaceMercadoLivre, "MLB1", ""); err == nil {
		t.Error("expected error when details fetch fails")
	}
}
