package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/marketscope/internal/metrics"
)

// 起動元の識別子。健全性表示とメトリクスのラベルに使用する。
const (
	SourceScheduled = "scheduled"
	SourceManual    = "manual"
)

// Scheduler は監視サイクルの周期実行を行う。
// ティッカーとコンテキストキャンセルを競争させ、先に完了した方に従う。
type Scheduler struct {
	checker   *Checker
	health    *Health
	collector metrics.MetricsCollector
	logger    *slog.Logger
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(checker *Checker, health *Health, collector metrics.MetricsCollector, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		checker:   checker,
		health:    health,
		collector: collector,
		logger:    logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.health.SetActive(true)
	defer s.health.SetActive(false)

	s.logger.Info("監視スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx, SourceScheduled)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("監視スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx, SourceScheduled)
		}
	}
}

// RunOnce は監視サイクルを1回実行し、健全性状態を更新する。
// sourceは起動元（scheduled/manual）。ハンドラからの手動実行にも使用される。
func (s *Scheduler) RunOnce(ctx context.Context, source string) CycleResult {
	s.collector.RecordMonitorCycle(source)

	result, err := s.checker.RunCycle(ctx)
	if err != nil {
		s.logger.Error("監視サイクルの実行に失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}
	s.health.RecordCycle(source, result.String(), err)

	return result
}

// HealthStatus は現在の健全性状態を返す。
func (s *Scheduler) HealthStatus() HealthStatus {
	return s.health.Snapshot()
}
