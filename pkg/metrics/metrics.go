// Package metrics defines the Prometheus metric collectors used across the
// index build pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	BatchesInvertedTotal *prometheus.CounterVec
	BatchInvertDuration  prometheus.Histogram
	SegmentsFlushedTotal *prometheus.CounterVec
	SegmentFlushDuration prometheus.Histogram
	SegmentMergesTotal   *prometheus.CounterVec
	SegmentMergeDuration prometheus.Histogram
	TermsMergedTotal     prometheus.Counter
	ActiveSegments       prometheus.Gauge
	PoolBytesReserved    prometheus.Gauge
	PoolBytesInUse       prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_docs_indexed_total",
				Help: "Total documents run through the column inverter.",
			},
		),
		BatchesInvertedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_batches_inverted_total",
				Help: "Total document batches inverted, by commit target (memory, spill).",
			},
			[]string{"target"},
		),
		BatchInvertDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_batch_invert_duration_seconds",
				Help:    "Wall time to invert, sort, and commit one batch.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		SegmentsFlushedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_segments_flushed_total",
				Help: "Total segment flush operations by status.",
			},
			[]string{"status"},
		),
		SegmentFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_segment_flush_duration_seconds",
				Help:    "Wall time to dump the memory indexer into a segment triple.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		SegmentMergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_segment_merges_total",
				Help: "Total segment merge operations by status.",
			},
			[]string{"status"},
		),
		SegmentMergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_segment_merge_duration_seconds",
				Help:    "Wall time of a k-way segment merge.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		TermsMergedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_terms_merged_total",
				Help: "Total terms written by the segment merger.",
			},
		),
		ActiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_active_segments",
				Help: "Number of live on-disk segments.",
			},
		),
		PoolBytesReserved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_pool_bytes_reserved",
				Help: "Bytes of chunk memory held by build pools.",
			},
		),
		PoolBytesInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_pool_bytes_in_use",
				Help: "Bytes currently allocated out of build pools.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_posting_cache_hits_total",
				Help: "Total posting cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_posting_cache_misses_total",
				Help: "Total posting cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.DocsIndexedTotal,
		m.BatchesInvertedTotal,
		m.BatchInvertDuration,
		m.SegmentsFlushedTotal,
		m.SegmentFlushDuration,
		m.SegmentMergesTotal,
		m.SegmentMergeDuration,
		m.TermsMergedTotal,
		m.ActiveSegments,
		m.PoolBytesReserved,
		m.PoolBytesInUse,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
