package pipeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/marketscope/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 同一(marketplace, listing_id)の重複が除去され最初の出現が残ることを検証
func TestDedup_RemovesDuplicateIDs(t *testing.T) {
	listings := []model.Listing{
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "MLB1", Title: "Sofá A", Price: 100},
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "MLB1", Title: "Sofá B", Price: 200},
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "MLB2", Title: "Sofá C", Price: 300},
	}

	unique := Dedup(listings)
	if len(unique) != 2 {
		t.Fatalf("len(unique) = %d, want 2", len(unique))
	}
	if unique[0].Price != 100 {
		t.Errorf("first occurrence should win, got price %v", unique[0].Price)
	}
}

// 正規化タイトルキーが一致する重複が除去されることを検証
func TestDedup_RemovesDuplicateTitles(t *testing.T) {
	listings := []model.Listing{
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "MLB1", Title: "Sofá Retrátil 3 Lugares"},
		{Marketplace: model.MarketplaceMagalu, ListingID: "MG1", Title: "sofá-retrátil  3 lugares"},
	}

	unique := Dedup(listings)
	if len(unique) != 1 {
		t.Fatalf("len(unique) = %d, want 1", len(unique))
	}
	if unique[0].ListingID != "MLB1" {
		t.Errorf("first occurrence should win, got %q", unique[0].ListingID)
	}
}

// 出力が入力の部分列であり要素数が減るだけであることを検証
func TestDedup_PreservesOrder(t *testing.T) {
	listings := []model.Listing{
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "A", Title: "t1"},
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "B", Title: "t2"},
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "A", Title: "t3"},
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "C", Title: "t4"},
	}

	unique := Dedup(listings)
	if len(unique) > len(listings) {
		t.Fatal("output must not be longer than input")
	}
	want := []string{"A", "B", "C"}
	for i, id := range want {
		if unique[i].ListingID != id {
			t.Errorf("unique[%d].ListingID = %q, want %q", i, unique[i].ListingID, id)
		}
	}
}

// seo_termsが3語未満の場合にテキストから再生成されることを検証
func TestEnrich_RegeneratesSparseTerms(t *testing.T) {
	listings := []model.Listing{{
		Title: "Sofá retrátil reclinável suede",
		TextBlocks: model.TextBlocks{
			Bullets:     []string{"Sofá retrátil confortável"},
			Description: "Sofá retrátil em suede premium",
		},
		SEOTerms: []string{"sofá"},
	}}

	enriched := Enrich(listings)
	terms := enriched[0].SEOTerms
	if len(terms) < 3 {
		t.Fatalf("len(terms) = %d, want >= 3", len(terms))
	}
	// "sofá"(4文字)と"retrátil"は3回出現するため上位に来る
	if terms[0] != "sofá" {
		t.Errorf("terms[0] = %q, want %q", terms[0], "sofá")
	}
	if terms[1] != "retrátil" {
		t.Errorf("terms[1] = %q, want %q", terms[1], "retrátil")
	}
}

// ストップワードと3文字以下のトークンが除外されることを検証
func TestEnrich_FiltersStopWordsAndShortTokens(t *testing.T) {
	listings := []model.Listing{{
		Title: "Mesa com tampo de vidro para sala",
	}}

	enriched := Enrich(listings)
	for _, term := range enriched[0].SEOTerms {
		if term == "com" || term == "para" {
			t.Errorf("stop word %q should be filtered", term)
		}
		if len([]rune(term)) <= 3 {
			t.Errorf("short token %q should be filtered", term)
		}
	}
}

// 十分なseo_termsとfinal_priceを持つ出品が変更されないこと（冪等性）を検証
func TestEnrich_Idempotent(t *testing.T) {
	listings := []model.Listing{{
		Title:              "Sofá retrátil",
		Price:              100,
		ShippingCost:       20,
		FinalPriceEstimate: 150, // 明示的な上書き
		SEOTerms:           []string{"sofá", "retrátil", "suede"},
	}}

	once := Enrich(listings)
	twice := Enrich(once)

	if once[0].FinalPriceEstimate != 150 {
		t.Errorf("explicit final price overwritten: %v", once[0].FinalPriceEstimate)
	}
	if len(twice[0].SEOTerms) != 3 || twice[0].SEOTerms[0] != "sofá" {
		t.Errorf("terms changed on second run: %v", twice[0].SEOTerms)
	}
	if twice[0].FinalPriceEstimate != once[0].FinalPriceEstimate {
		t.Error("enrich is not idempotent for final price")
	}
}

// final_price_estimateが0の場合にprice+shipping_costで再計算されることを検証
func TestEnrich_RecomputesFinalPrice(t *testing.T) {
	listings := []model.Listing{{
		Title:        "Sofá retrátil suede premium",
		Price:        100,
		ShippingCost: 25.5,
	}}

	enriched := Enrich(listings)
	if got := enriched[0].FinalPriceEstimate; got != 125.5 {
		t.Errorf("FinalPriceEstimate = %v, want 125.5", got)
	}
}

// 偶数個の価格で中央値が中央2値の平均になることを検証
func TestAggregate_MedianEvenCount(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 80},
		{ListingID: "2", Title: "b", Price: 100},
		{ListingID: "3", Title: "c", Price: 100},
		{ListingID: "4", Title: "d", Price: 500},
	}

	result := Aggregate(listings, "sofá", model.MarketplaceMercadoLivre)
	if result.PriceRange.Median != 100 {
		t.Errorf("Median = %v, want 100", result.PriceRange.Median)
	}
	if result.PriceRange.Min != 80 || result.PriceRange.Max != 500 {
		t.Errorf("Min/Max = %v/%v, want 80/500", result.PriceRange.Min, result.PriceRange.Max)
	}
	if result.PriceRange.Avg != 195 {
		t.Errorf("Avg = %v, want 195", result.PriceRange.Avg)
	}
}

// min <= median <= max の不変条件を検証
func TestAggregate_PriceRangeInvariant(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 33.33},
		{ListingID: "2", Title: "b", Price: 129.9},
		{ListingID: "3", Title: "c", Price: 75.5},
	}

	pr := Aggregate(listings, "mesa", model.MarketplaceMagalu).PriceRange
	if pr.Min > pr.Median || pr.Median > pr.Max {
		t.Errorf("invariant violated: min=%v median=%v max=%v", pr.Min, pr.Median, pr.Max)
	}
}

// 非正の価格が統計から除外されることを検証
func TestAggregate_IgnoresNonPositivePrices(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 0},
		{ListingID: "2", Title: "b", Price: -5},
		{ListingID: "3", Title: "c", Price: 50},
	}

	pr := Aggregate(listings, "cadeira", model.MarketplaceMercadoLivre).PriceRange
	if pr.Min != 50 || pr.Max != 50 || pr.Avg != 50 || pr.Median != 50 {
		t.Errorf("PriceRange = %+v, want all 50", pr)
	}
}

// 空バッチでゼロ値の結果が返りNaNが生成されないことを検証
func TestAggregate_EmptyBatch(t *testing.T) {
	result := Aggregate(nil, "sofá", model.MarketplaceMercadoLivre)
	if result.TotalCollected != 0 {
		t.Errorf("TotalCollected = %d, want 0", result.TotalCollected)
	}
	if result.PriceRange != (model.PriceRange{}) {
		t.Errorf("PriceRange = %+v, want zero value", result.PriceRange)
	}
	if result.CompetitorSummary.TotalAnalyzed != 0 {
		t.Errorf("TotalAnalyzed = %d, want 0", result.CompetitorSummary.TotalAnalyzed)
	}
	if len(result.Gaps) != 0 {
		t.Errorf("Gaps = %v, want empty", result.Gaps)
	}
}

// 正の価格がないバッチでギャップ判定が行われないことを検証
func TestAggregate_NoGapsWithoutPositivePrices(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 0},
		{ListingID: "2", Title: "b", Price: 0},
	}

	result := Aggregate(listings, "sofá", model.MarketplaceMercadoLivre)
	if len(result.Gaps) != 0 {
		t.Errorf("Gaps = %v, want empty", result.Gaps)
	}
}

// 60%超が送料無料でない場合にshipping_gapが検出されることを検証
func TestAggregate_DetectsShippingGap(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 100, Badges: model.Badges{FreeShipping: true}},
		{ListingID: "2", Title: "b", Price: 100},
		{ListingID: "3", Title: "c", Price: 100},
		{ListingID: "4", Title: "d", Price: 100},
	}

	result := Aggregate(listings, "sofá", model.MarketplaceMercadoLivre)
	found := false
	for _, g := range result.Gaps {
		if g.Type == model.GapTypeShipping {
			found = true
		}
	}
	if !found {
		t.Error("expected shipping_gap to be detected")
	}
}

// 競合サマリーのパーセンテージが小数第1位に丸められることを検証
func TestAggregate_CompetitorSummaryRounding(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 100, Badges: model.Badges{FreeShipping: true}},
		{ListingID: "2", Title: "b", Price: 100},
		{ListingID: "3", Title: "c", Price: 100},
	}

	summary := Aggregate(listings, "sofá", model.MarketplaceMercadoLivre).CompetitorSummary
	if summary.FreeShippingPct != 33.3 {
		t.Errorf("FreeShippingPct = %v, want 33.3", summary.FreeShippingPct)
	}
	if summary.TotalAnalyzed != 3 {
		t.Errorf("TotalAnalyzed = %d, want 3", summary.TotalAnalyzed)
	}
}

// SEO用語集計が頻度順・初出順タイブレークで上位を返すことを検証
func TestAggregate_TopSEOTerms(t *testing.T) {
	listings := []model.Listing{
		{ListingID: "1", Title: "a", Price: 100, SEOTerms: []string{"sofá", "retrátil", "suede"}},
		{ListingID: "2", Title: "b", Price: 100, SEOTerms: []string{"sofá", "reclinável"}},
	}

	terms := Aggregate(listings, "sofá", model.MarketplaceMercadoLivre).TopSEOTerms
	if len(terms) != 4 {
		t.Fatalf("len(terms) = %d, want 4", len(terms))
	}
	if terms[0].Term != "sofá" || terms[0].Freq != 2 {
		t.Errorf("terms[0] = %+v, want sofá/2", terms[0])
	}
	// 同頻度(1)は初出順: retrátil → suede → reclinável
	if terms[1].Term != "retrátil" || terms[2].Term != "suede" || terms[3].Term != "reclinável" {
		t.Errorf("tiebreak order wrong: %+v", terms[1:])
	}
}

// ファサードが重複排除と補完を適用した結果を返すことを検証
func TestPipeline_Run(t *testing.T) {
	p := New(testLogger())
	listings := []model.Listing{
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "MLB1", Title: "Sofá retrátil suede premium", Price: 100, ShippingCost: 20},
		{Marketplace: model.MarketplaceMercadoLivre, ListingID: "MLB1", Title: "Sofá retrátil suede premium 2", Price: 200},
	}

	result := p.Run(listings, "sofá retrátil", model.MarketplaceMercadoLivre)
	if result.TotalCollected != 1 {
		t.Fatalf("TotalCollected = %d, want 1", result.TotalCollected)
	}
	if result.Listings[0].FinalPriceEstimate != 120 {
		t.Errorf("FinalPriceEstimate = %v, want 120", result.Listings[0].FinalPriceEstimate)
	}
	if result.Keyword != "sofá retrátil" {
		t.Errorf("Keyword = %q", result.Keyword)
	}
}
