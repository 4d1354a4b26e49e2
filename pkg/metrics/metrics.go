// Package metrics defines the Prometheus metric collectors used across the
// indexing platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	DocsIndexedTotal    prometheus.Counter
	FilesIngestedTotal  *prometheus.CounterVec
	ShardAppendsTotal   *prometheus.CounterVec
	ShardMergesTotal    *prometheus.CounterVec
	MergeDuration       prometheus.Histogram
	PostingReadsTotal   prometheus.Counter
	PostingReadLatency  prometheus.Histogram
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	SpillBytesTotal     prometheus.Counter
	ActiveShards        prometheus.Gauge
	UniqueKeysEstimate  *prometheus.GaugeVec
	CentralityRounds    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		FilesIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_ingested_total",
				Help: "Total TSV batch files processed by status (ok, failed).",
			},
			[]string{"status"},
		),
		ShardAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_appends_total",
				Help: "Total spill-file append operations by status.",
			},
			[]string{"status"},
		),
		ShardMergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_merges_total",
				Help: "Total shard merge operations by status (ok, corrupt, error).",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shard_merge_duration_seconds",
				Help:    "Duration of shard merge operations in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		PostingReadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posting_reads_total",
				Help: "Total posting-list reads served by shard readers.",
			},
		),
		PostingReadLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "posting_read_latency_seconds",
				Help:    "Posting-list read latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		SpillBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spill_bytes_total",
				Help: "Total bytes appended to shard spill files.",
			},
		),
		ActiveShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_shards",
				Help: "Number of active index shards.",
			},
		),
		UniqueKeysEstimate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_unique_values_estimate",
				Help: "HyperLogLog estimate of unique record values per shard.",
			},
			[]string{"shard_id"},
		),
		CentralityRounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "centrality_rounds_total",
				Help: "Total HyperBall rounds executed.",
			},
		),
	}

	prometheus.MustRegister(
		m.DocsIndexedTotal,
		m.FilesIngestedTotal,
		m.ShardAppendsTotal,
		m.ShardMergesTotal,
		m.MergeDuration,
		m.PostingReadsTotal,
		m.PostingReadLatency,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SpillBytesTotal,
		m.ActiveShards,
		m.UniqueKeysEstimate,
		m.CentralityRounds,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
