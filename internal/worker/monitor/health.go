package monitor

import (
	"sync"
	"time"
)

// HealthStatus はスケジューラの健全性のある時点のスナップショット。
type HealthStatus struct {
	Active     bool
	LastRunAt  time.Time
	LastSource string
	LastResult string
	LastError  string
	CycleCount int
}

// Health はスケジューラのプロセス内健全性状態を保持する。
// サイクル実行（ワーカーゴルーチン）とハンドラ（HTTPゴルーチン）の
// 両方から参照されるため、全アクセスをミューテックスで保護する。
type Health struct {
	mu     sync.Mutex
	status HealthStatus
}

// NewHealth はHealthを生成する。
func NewHealth() *Health {
	return &Health{}
}

// SetActive はスケジューラの稼働フラグを設定する。
func (h *Health) SetActive(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Active = active
}

// RecordCycle はサイクル1回の実行結果を記録する。
// errはサイクルを囲むスケジューリング機構自体の失敗のみに設定される
// （出品単位の失敗はサイクル結果に集計され、ここには届かない）。
func (h *Health) RecordCycle(source, result string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.LastRunAt = time.Now()
	h.status.LastSource = source
	h.status.LastResult = result
	h.status.CycleCount++
	if err != nil {
		h.status.LastError = err.Error()
	} else {
		h.status.LastError = ""
	}
}

// Snapshot は現在の健全性状態のコピーを返す。
func (h *Health) Snapshot() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
