// Package metrics implements the prometheus gauges/counters/histograms
// (C14) the chain driver and query API report against, in the teacher's
// promauto-based style.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every prometheus collector the indexer reports.
type Metrics struct {
	TipHeight       prometheus.Gauge
	BlocksApplied   prometheus.Counter
	ReorgCount      prometheus.Counter
	ReorgDepth      prometheus.Histogram
	ApplyDuration   *prometheus.HistogramVec // labeled "exec" / "undo"
	RPCDuration     *prometheus.HistogramVec // labeled by method
	APIRequestTotal *prometheus.CounterVec   // labeled endpoint, status
}

// New registers and returns the indexer's metrics against the default
// prometheus registry.
func New() *Metrics {
	return &Metrics{
		TipHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "utxoindex_tip_height",
			Help: "Height of the last block applied to the index.",
		}),
		BlocksApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "utxoindex_blocks_applied_total",
			Help: "Total number of blocks applied (Exec calls).",
		}),
		ReorgCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "utxoindex_reorg_total",
			Help: "Total number of reorganizations handled.",
		}),
		ReorgDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "utxoindex_reorg_depth_blocks",
			Help:    "Depth, in blocks, of each handled reorganization.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		ApplyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "utxoindex_apply_duration_seconds",
			Help:    "Time spent applying or undoing a block.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		RPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "utxoindex_rpc_duration_seconds",
			Help:    "Time spent on upstream RPC calls, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		APIRequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "utxoindex_api_requests_total",
			Help: "Total query API requests, by endpoint and status code.",
		}, []string{"endpoint", "status"}),
	}
}

// ObserveAPIRequest records one completed HTTP request against endpoint.
func (m *Metrics) ObserveAPIRequest(endpoint string, status int) {
	m.APIRequestTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveReorg records a handled reorganization of the given depth.
func (m *Metrics) ObserveReorg(depth int) {
	m.ReorgCount.Inc()
	m.ReorgDepth.Observe(float64(depth))
}
