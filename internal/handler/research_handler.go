// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/marketscope/internal/model"
)

// ResearchServiceInterface は調査・監査ハンドラーが必要とするサービスインターフェース。
type ResearchServiceInterface interface {
	// Research はキーワード市場調査を実行する。
	Research(ctx context.Context, workspaceID string, marketplace model.Marketplace, keyword string, filters map[string]string, save bool) (model.MarketResearchResult, error)
	// Audit は出品1件の総合監査を実行する。
	Audit(ctx context.Context, workspaceID string, marketplace model.Marketplace, listingID, keyword string) (model.AuditResult, error)
}

// ResearchHandler は市場調査・出品監査のHTTPハンドラー。
type ResearchHandler struct {
	service ResearchServiceInterface
}

// NewResearchHandler はResearchHandlerを生成する。
func NewResearchHandler(service ResearchServiceInterface) *ResearchHandler {
	return &ResearchHandler{service: service}
}

// researchRequest は市場調査リクエストのボディ。
type researchRequest struct {
	WorkspaceID string            `json:"workspace_id"`
	Marketplace string            `json:"marketplace"`
	Keyword     string            `json:"keyword"`
	Filters     map[string]string `json:"filters"`
	Save        bool              `json:"save"`
}

// auditRequest は出品監査リクエストのボディ。
type auditRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Marketplace string `json:"marketplace"`
	ListingID   string `json:"listing_id"`
	Keyword     string `json:"keyword"`
}

// listingSummaryResponse は調査結果内の出品サマリー。
type listingSummaryResponse struct {
	ListingID          string   `json:"listing_id"`
	Title              string   `json:"title"`
	URL                string   `json:"url"`
	Price              float64  `json:"price"`
	FinalPriceEstimate float64  `json:"final_price_estimate"`
	FreeShipping       bool     `json:"free_shipping"`
	MediaCount         int      `json:"media_count"`
	ReviewCount        int      `json:"review_count"`
	Rating             float64  `json:"rating"`
	SEOTerms           []string `json:"seo_terms"`
}

// priceRangeResponse は価格統計のレスポンス。
type priceRangeResponse struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
}

// termFrequencyResponse はSEO用語頻度のレスポンス。
type termFrequencyResponse struct {
	Term string `json:"term"`
	Freq int    `json:"freq"`
}

// competitorSummaryResponse は競合サマリーのレスポンス。
type competitorSummaryResponse struct {
	TotalAnalyzed   int     `json:"total_analyzed"`
	FreeShippingPct float64 `json:"free_shipping_pct"`
	FulfillmentPct  float64 `json:"fulfillment_pct"`
	SponsoredPct    float64 `json:"sponsored_pct"`
	AvgMediaCount   float64 `json:"avg_media_count"`
	AvgReviews      float64 `json:"avg_reviews"`
	AvgRating       float64 `json:"avg_rating"`
}

// marketGapResponse は市場ギャップのレスポンス。
type marketGapResponse struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Opportunity string `json:"opportunity"`
}

// researchResponse は市場調査結果のAPIレスポンス。
type researchResponse struct {
	Keyword           string                    `json:"keyword"`
	Marketplace       string                    `json:"marketplace"`
	TotalCollected    int                       `json:"total_collected"`
	Listings          []listingSummaryResponse  `json:"listings"`
	PriceRange        priceRangeResponse        `json:"price_range"`
	TopSEOTerms       []termFrequencyResponse   `json:"top_seo_terms"`
	CompetitorSummary competitorSummaryResponse `json:"competitor_summary"`
	Gaps              []marketGapResponse       `json:"gaps"`
	ResearchedAt      time.Time                 `json:"researched_at"`
}

// scoreBreakdownResponse は1スコアラーの採点結果のレスポンス。
type scoreBreakdownResponse struct {
	Score       float64            `json:"score"`
	Label       string             `json:"label"`
	Details     map[string]float64 `json:"details"`
	Suggestions []string           `json:"suggestions"`
}

// auditResponse は出品監査結果のAPIレスポンス。
type auditResponse struct {
	ListingID       string                 `json:"listing_id"`
	Marketplace     string                 `json:"marketplace"`
	SEO             scoreBreakdownResponse `json:"seo"`
	Conversion      scoreBreakdownResponse `json:"conversion"`
	Competitiveness scoreBreakdownResponse `json:"competitiveness"`
	OverallScore    float64                `json:"overall_score"`
	TopActions      []string               `json:"top_actions"`
	AuditedAt       time.Time              `json:"audited_at"`
}

// Research はキーワード市場調査を処理する。
// POST /api/research
func (h *ResearchHandler) Research(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.Keyword == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "検索キーワードが空です。",
			Category: "validation",
			Action:   "keywordを指定してください。",
		})
		return
	}

	result, err := h.service.Research(r.Context(), req.WorkspaceID, model.Marketplace(req.Marketplace), req.Keyword, req.Filters, req.Save)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResearchResponse(result))
}

// Audit は出品監査を処理する。
// POST /api/audit
func (h *ResearchHandler) Audit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.ListingID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewListingNotFoundError("(empty)"))
		return
	}

	result, err := h.service.Audit(r.Context(), req.WorkspaceID, model.Marketplace(req.Marketplace), req.ListingID, req.Keyword)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAuditResponse(result))
}

// --- ヘルパー関数 ---

// toResearchResponse はmodel.MarketResearchResultからAPIレスポンスに変換する。
func toResearchResponse(result model.MarketResearchResult) researchResponse {
	listings := make([]listingSummaryResponse, 0, len(result.Listings))
	for _, l := range result.Listings {
		listings = append(listings, listingSummaryResponse{
			ListingID:          l.ListingID,
			Title:              l.Title,
			URL:                l.URL,
			Price:              l.Price,
			FinalPriceEstimate: l.FinalPriceEstimate,
			FreeShipping:       l.Badges.FreeShipping,
			MediaCount:         l.MediaCount(),
			ReviewCount:        l.SocialProof.ReviewCount,
			Rating:             l.SocialProof.Rating,
			SEOTerms:           l.SEOTerms,
		})
	}

	terms := make([]termFrequencyResponse, 0, len(result.TopSEOTerms))
	for _, t := range result.TopSEOTerms {
		terms = append(terms, termFrequencyResponse{Term: t.Term, Freq: t.Freq})
	}

	gaps := make([]marketGapResponse, 0, len(result.Gaps))
	for _, g := range result.Gaps {
		gaps = append(gaps, marketGapResponse{
			Type:        string(g.Type),
			Label:       g.Label,
			Description: g.Description,
			Opportunity: g.Opportunity,
		})
	}

	return researchResponse{
		Keyword:        result.Keyword,
		Marketplace:    string(result.Marketplace),
		TotalCollected: result.TotalCollected,
		Listings:       listings,
		PriceRange: priceRangeResponse{
			Min:    result.PriceRange.Min,
			Max:    result.PriceRange.Max,
			Avg:    result.PriceRange.Avg,
			Median: result.PriceRange.Median,
		},
		TopSEOTerms: terms,
		CompetitorSummary: competitorSummaryResponse{
			TotalAnalyzed:   result.CompetitorSummary.TotalAnalyzed,
			FreeShippingPct: result.CompetitorSummary.FreeShippingPct,
			FulfillmentPct:  result.CompetitorSummary.FulfillmentPct,
			SponsoredPct:    result.CompetitorSummary.SponsoredPct,
			AvgMediaCount:   result.CompetitorSummary.AvgMediaCount,
			AvgReviews:      result.CompetitorSummary.AvgReviews,
			AvgRating:       result.CompetitorSummary.AvgRating,
		},
		Gaps:         gaps,
		ResearchedAt: result.ResearchedAt,
	}
}

// toAuditResponse はmodel.AuditResultからAPIレスポンスに変換する。
func toAuditResponse(result model.AuditResult) auditResponse {
	return auditResponse{
		ListingID:       result.ListingID,
		Marketplace:     string(result.Marketplace),
		SEO:             toBreakdownResponse(result.SEO),
		Conversion:      toBreakdownResponse(result.Conversion),
		Competitiveness: toBreakdownResponse(result.Competitiveness),
		OverallScore:    result.OverallScore,
		TopActions:      result.TopActions,
		AuditedAt:       result.AuditedAt,
	}
}

func toBreakdownResponse(b model.ScoreBreakdown) scoreBreakdownResponse {
	return scoreBreakdownResponse{
		Score:       b.Score,
		Label:       string(b.Label),
		Details:     b.Details,
		Suggestions: b.Suggestions,
	}
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// invalidRequestError はリクエストボディ解析失敗のエラーを生成する。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIエラーコードをHTTPステータスコードに変換する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidMarketplace, model.ErrCodeInvalidURL, model.ErrCodeInvalidCondition:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeConnectorFailed:
		return http.StatusBadGateway
	case model.ErrCodeListingNotFound, model.ErrCodeRuleNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
