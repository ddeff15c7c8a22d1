package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/marketscope/internal/model"
	"github.com/hitoshi/marketscope/internal/repository"
)

// defaultEventLimit はイベント一覧のデフォルト取得件数。
const defaultEventLimit = 50

// AlertHandler はアラートルールとイベントのHTTPハンドラー。
type AlertHandler struct {
	ruleRepo  repository.AlertRuleRepository
	eventRepo repository.AlertEventRepository
}

// NewAlertHandler はAlertHandlerを生成する。
func NewAlertHandler(ruleRepo repository.AlertRuleRepository, eventRepo repository.AlertEventRepository) *AlertHandler {
	return &AlertHandler{
		ruleRepo:  ruleRepo,
		eventRepo: eventRepo,
	}
}

// createRuleRequest はアラートルール作成リクエストのボディ。
type createRuleRequest struct {
	WorkspaceID string  `json:"workspace_id"`
	ListingID   string  `json:"listing_id"`
	Field       string  `json:"field"`
	Operator    string  `json:"operator"`
	Threshold   float64 `json:"threshold"`
}

// setActiveRequest はルール有効/無効切り替えリクエストのボディ。
type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// ruleResponse はアラートルールのAPIレスポンス。
type ruleResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ListingID   string    `json:"listing_id,omitempty"`
	Field       string    `json:"field"`
	Operator    string    `json:"operator"`
	Threshold   float64   `json:"threshold"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// eventResponse はアラートイベントのAPIレスポンス。
type eventResponse struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	RuleID      string         `json:"rule_id"`
	ListingID   string         `json:"listing_id"`
	EventData   map[string]any `json:"event_data"`
	TriggeredAt time.Time      `json:"triggered_at"`
}

// CreateRule はアラートルールを作成する。
// POST /api/alerts/rules
func (h *AlertHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	operator := model.AlertOperator(req.Operator)
	switch operator {
	case model.OperatorChanged, model.OperatorDecreasedByPct, model.OperatorIncreasedByPct:
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidConditionError(req.Operator))
		return
	}

	if req.Field == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidCondition,
			Message:  "監視対象フィールドが空です。",
			Category: "validation",
			Action:   "fieldを指定してください（例: price）。",
		})
		return
	}

	rule := &model.AlertRule{
		ID:          uuid.New().String(),
		WorkspaceID: req.WorkspaceID,
		ListingID:   req.ListingID,
		Condition: model.AlertCondition{
			Field:     req.Field,
			Operator:  operator,
			Threshold: req.Threshold,
		},
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := h.ruleRepo.Create(r.Context(), rule); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toRuleResponse(rule))
}

// ListRules はワークスペースのアラートルール一覧を返す。
// GET /api/alerts/rules?workspace_id=...
func (h *AlertHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")

	rules, err := h.ruleRepo.ListByWorkspace(r.Context(), workspaceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, toRuleResponse(rule))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// SetRuleActive はルールの有効/無効を切り替える。
// PUT /api/alerts/rules/{id}/active
func (h *AlertHandler) SetRuleActive(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	rule, err := h.ruleRepo.FindByID(r.Context(), ruleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rule == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, ruleNotFoundError(ruleID))
		return
	}

	if err := h.ruleRepo.SetActive(r.Context(), ruleID, req.IsActive); err != nil {
		handleServiceError(w, err)
		return
	}

	rule.IsActive = req.IsActive
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRuleResponse(rule))
}

// DeleteRule はアラートルールを削除する。
// DELETE /api/alerts/rules/{id}
func (h *AlertHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.ruleRepo.FindByID(r.Context(), ruleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rule == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, ruleNotFoundError(ruleID))
		return
	}

	if err := h.ruleRepo.Delete(r.Context(), ruleID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEvents はワークスペースのアラートイベント一覧を新しい順に返す。
// GET /api/alerts/events?workspace_id=...&limit=...
func (h *AlertHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.eventRepo.ListByWorkspace(r.Context(), workspaceID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, eventResponse{
			ID:          event.ID,
			WorkspaceID: event.WorkspaceID,
			RuleID:      event.RuleID,
			ListingID:   event.ListingID,
			EventData:   event.EventData,
			TriggeredAt: event.TriggeredAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// toRuleResponse はmodel.AlertRuleからAPIレスポンスに変換する。
func toRuleResponse(rule *model.AlertRule) ruleResponse {
	return ruleResponse{
		ID:          rule.ID,
		WorkspaceID: rule.WorkspaceID,
		ListingID:   rule.ListingID,
		Field:       rule.Condition.Field,
		Operator:    string(rule.Condition.Operator),
		Threshold:   rule.Condition.Threshold,
		IsActive:    rule.IsActive,
		CreatedAt:   rule.CreatedAt,
	}
}

// ruleNotFoundError はルール未検出エラーを生成する。
func ruleNotFoundError(ruleID string) *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeRuleNotFound,
		Message:  "指定されたアラートルールが見つかりません: " + ruleID,
		Category: "monitor",
		Action:   "ルールIDを確認してください。",
	}
}
