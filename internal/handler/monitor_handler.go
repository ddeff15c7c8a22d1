package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/marketscope/internal/worker/monitor"
)

// MonitorTrigger は監視ワーカーの状態参照と手動実行のインターフェース。
type MonitorTrigger interface {
	// RunOnce は監視サイクルを1回実行する。
	RunOnce(ctx context.Context, source string) monitor.CycleResult
	// HealthStatus は現在の健全性状態を返す。
	HealthStatus() monitor.HealthStatus
}

// MonitorHandler は監視ワーカーのHTTPハンドラー。
type MonitorHandler struct {
	trigger MonitorTrigger
}

// NewMonitorHandler はMonitorHandlerを生成する。
func NewMonitorHandler(trigger MonitorTrigger) *MonitorHandler {
	return &MonitorHandler{trigger: trigger}
}

// monitorHealthResponse は監視ワーカー健全性のAPIレスポンス。
type monitorHealthResponse struct {
	Active     bool       `json:"active"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastSource string     `json:"last_source,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CycleCount int        `json:"cycle_count"`
}

// cycleResultResponse は手動実行結果のAPIレスポンス。
type cycleResultResponse struct {
	RulesEvaluated   int `json:"rules_evaluated"`
	ListingsChecked  int `json:"listings_checked"`
	ListingFailures  int `json:"listing_failures"`
	SnapshotsWritten int `json:"snapshots_written"`
	EventsEmitted    int `json:"events_emitted"`
	EventsSuppressed int `json:"events_suppressed"`
}

// Health は監視ワーカーの健全性状態を返す。
// GET /api/monitor/health
func (h *MonitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.trigger.HealthStatus()

	resp := monitorHealthResponse{
		Active:     status.Active,
		LastSource: status.LastSource,
		LastResult: status.LastResult,
		LastError:  status.LastError,
		CycleCount: status.CycleCount,
	}
	if !status.LastRunAt.IsZero() {
		t := status.LastRunAt
		resp.LastRunAt = &t
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Run は監視サイクルを手動で1回実行する。
// POST /api/monitor/run
func (h *MonitorHandler) Run(w http.ResponseWriter, r *http.Request) {
	result := h.trigger.RunOnce(r.Context(), monitor.SourceManual)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cycleResultResponse{
		RulesEvaluated:   result.RulesEvaluated,
		ListingsChecked:  result.ListingsChecked,
		ListingFailures:  result.ListingFailures,
		SnapshotsWritten: result.SnapshotsWritten,
		EventsEmitted:    result.EventsEmitted,
		EventsSuppressed: result.EventsSuppressed,
	})
}
