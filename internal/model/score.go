// Package model はドメインモデルを定義する。
package model

import "time"

// ScoreLabel はスコアの序数ラベルを表す。
type ScoreLabel string

const (
	// ScoreLabelPoor はスコア40未満。
	ScoreLabelPoor ScoreLabel = "poor"
	// ScoreLabelRegular はスコア40以上65未満。
	ScoreLabelRegular ScoreLabel = "regular"
	// ScoreLabelGood はスコア65以上80未満。
	ScoreLabelGood ScoreLabel = "good"
	// ScoreLabelExcellent はスコア80以上。
	ScoreLabelExcellent ScoreLabel = "excellent"
)

// ScoreBreakdown は1つのスコアラーの採点結果を表す。
// Scoreは常に[0, 100]、Detailsはサブスコア名→値、
// Suggestionsはサブスコア順（優先度順）の改善提案で上限付き。
type ScoreBreakdown struct {
	Score       float64
	Label       ScoreLabel
	Details     map[string]float64
	Suggestions []string
}

// AuditResult は1出品の総合監査結果を表す。
// 3スコアラーの結果と重み付き総合スコア、優先アクションを保持する。
type AuditResult struct {
	ListingID       string
	Marketplace     Marketplace
	SEO             ScoreBreakdown
	Conversion      ScoreBreakdown
	Competitiveness ScoreBreakdown
	OverallScore    float64
	TopActions      []string
	AuditedAt       time.Time
}

// PriceRange は出品バッチの価格統計を表す。
// 正の価格のみが対象。バッチが空の場合は全フィールド0。
type PriceRange struct {
	Min    float64
	Max    float64
	Avg    float64
	Median float64
}

// TermFrequency はSEO用語とその出現頻度を表す。
type TermFrequency struct {
	Term string
	Freq int
}

// CompetitorSummary は競合出品の集計サマリーを表す。
// パーセンテージは小数第1位まで。空バッチでは全値0（NaNにしない）。
type CompetitorSummary struct {
	TotalAnalyzed   int
	FreeShippingPct float64
	FulfillmentPct  float64
	SponsoredPct    float64
	AvgMediaCount   float64
	AvgReviews      float64
	AvgRating       float64
}

// GapType は市場ギャップの種別を表す。
type GapType string

const (
	// GapTypePrice は低価格帯が手薄なギャップ。
	GapTypePrice GapType = "price_gap"
	// GapTypeShipping は送料無料が少ないギャップ。
	GapTypeShipping GapType = "shipping_gap"
	// GapTypeContent は画像ギャラリーが貧弱なギャップ。
	GapTypeContent GapType = "content_gap"
)

// MarketGap は検出された市場機会パターンを表す。
type MarketGap struct {
	Type        GapType
	Label       string
	Description string
	Opportunity string
}

// MarketResearchResult はキーワード市場調査の結果を表す。
type MarketResearchResult struct {
	Keyword           string
	Marketplace       Marketplace
	TotalCollected    int
	Listings          []Listing
	PriceRange        PriceRange
	TopSEOTerms       []TermFrequency
	CompetitorSummary CompetitorSummary
	Gaps              []MarketGap
	ResearchedAt      time.Time
}
