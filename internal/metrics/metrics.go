// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordMonitorCycle(source string)
	RecordListingChecked()
	RecordListingCheckFailure()
	RecordSnapshotWritten()
	RecordAlertEmitted()
	RecordAlertSuppressed()
	RecordResearchCacheHit()
	RecordResearchCacheMiss()
	RecordResearchLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	monitorCycles    *prometheus.CounterVec
	listingsChecked  prometheus.Counter
	listingsFailed   prometheus.Counter
	snapshotsWritten prometheus.Counter
	alertsEmitted    prometheus.Counter
	alertsSuppressed prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	researchLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		monitorCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketscope_monitor_cycles_total",
			Help: "監視サイクル実行の合計数（起動元別）",
		}, []string{"source"}),
		listingsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_listings_checked_total",
			Help: "監視サイクルで確認した出品の合計数",
		}),
		listingsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_listing_check_fail_total",
			Help: "確認に失敗した出品の合計数",
		}),
		snapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_snapshots_written_total",
			Help: "書き込まれたスナップショットの合計数",
		}),
		alertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_alerts_emitted_total",
			Help: "発火したアラートイベントの合計数",
		}),
		alertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_alerts_suppressed_total",
			Help: "dedupe windowにより抑制されたアラートの合計数",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_research_cache_hits_total",
			Help: "市場調査キャッシュヒットの合計数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscope_research_cache_misses_total",
			Help: "市場調査キャッシュミスの合計数",
		}),
		researchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketscope_research_latency_seconds",
			Help:    "市場調査のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.monitorCycles,
		c.listingsChecked,
		c.listingsFailed,
		c.snapshotsWritten,
		c.alertsEmitted,
		c.alertsSuppressed,
		c.cacheHits,
		c.cacheMisses,
		c.researchLatency,
	)

	return c
}

// RecordMonitorCycle は監視サイクルの実行を記録する。
func (c *Collector) RecordMonitorCycle(source string) {
	c.monitorCycles.WithLabelValues(source).Inc()
}

// RecordListingChecked は出品確認の実行を記録する。
func (c *Collector) RecordListingChecked() {
	c.listingsChecked.Inc()
}

// RecordListingCheckFailure は出品確認の失敗を記録する。
func (c *Collector) RecordListingCheckFailure() {
	c.listingsFailed.Inc()
}

// RecordSnapshotWritten はスナップショットの書き込みを記録する。
func (c *Collector) RecordSnapshotWritten() {
	c.snapshotsWritten.Inc()
}

// RecordAlertEmitted はアラートイベントの発火を記録する。
func (c *Collector) RecordAlertEmitted() {
	c.alertsEmitted.Inc()
}

// RecordAlertSuppressed はdedupe windowによるアラート抑制を記録する。
func (c *Collector) RecordAlertSuppressed() {
	c.alertsSuppressed.Inc()
}

// RecordResearchCacheHit は市場調査キャッシュヒットを記録する。
func (c *Collector) RecordResearchCacheHit() {
	c.cacheHits.Inc()
}

// RecordResearchCacheMiss は市場調査キャッシュミスを記録する。
func (c *Collector) RecordResearchCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordResearchLatency は市場調査のレイテンシを記録する。
func (c *Collector) RecordResearchLatency(duration time.Duration) {
	c.researchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
