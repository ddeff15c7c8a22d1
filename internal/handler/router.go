package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/marketscope/internal/metrics"
	"github.com/hitoshi/marketscope/internal/middleware"
	"github.com/hitoshi/marketscope/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	ResearchService ResearchServiceInterface
	MonitorTrigger  MonitorTrigger
	RuleRepo        repository.AlertRuleRepository
	EventRepo       repository.AlertEventRepository
	Gatherer        prometheus.Gatherer
	Logger          *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	researchHandler := NewResearchHandler(deps.ResearchService)
	alertHandler := NewAlertHandler(deps.RuleRepo, deps.EventRepo)
	monitorHandler := NewMonitorHandler(deps.MonitorTrigger)

	// プロセス健全性（ロードバランサ向け）
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// 市場調査・出品監査
	r.Post("/api/research", researchHandler.Research)
	r.Post("/api/audit", researchHandler.Audit)

	// アラートルール・イベント
	r.Route("/api/alerts", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Post("/", alertHandler.CreateRule)
			r.Get("/", alertHandler.ListRules)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/active", alertHandler.SetRuleActive)
				r.Delete("/", alertHandler.DeleteRule)
			})
		})

		r.Get("/events", alertHandler.ListEvents)
	})

	// 監視ワーカー
	r.Route("/api/monitor", func(r chi.Router) {
		r.Get("/health", monitorHandler.Health)
		r.Post("/run", monitorHandler.Run)
	})

	return r
}
