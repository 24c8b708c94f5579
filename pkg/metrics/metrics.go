package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage operation metrics, also driven by the Metered
	// Storage wrapper.
	StorageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kotadb_storage_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component", "operation"},
	)

	StorageOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_storage_operations_total",
			Help: "Total document store operations by component, operation and status",
		},
		[]string{"component", "operation", "status"},
	)

	// Index operation metrics, driven by the Metered Index
	// wrapper.
	IndexOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kotadb_index_operation_duration_seconds",
			Help:    "Index operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component", "operation"},
	)

	IndexOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_index_operations_total",
			Help: "Total index operations by component, operation and status",
		},
		[]string{"component", "operation", "status"},
	)

	// Cache wrapper hit/miss counters.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_cache_hits_total",
			Help: "Total cache hits by component",
		},
		[]string{"component"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_cache_misses_total",
			Help: "Total cache misses by component",
		},
		[]string{"component"},
	)

	// Corpus-size gauges, updated by Collector on each poll.
	DocumentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kotadb_documents_total",
			Help: "Total number of documents in the store",
		},
	)

	SymbolsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kotadb_symbols_total",
			Help: "Total number of symbols in the binary symbol database",
		},
	)

	GraphNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kotadb_graph_nodes_total",
			Help: "Total number of nodes in the relationship graph",
		},
	)

	GraphEdgesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kotadb_graph_edges_total",
			Help: "Total number of edges in the relationship graph",
		},
	)

	// Ingestion pipeline metrics.
	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kotadb_ingestion_duration_seconds",
			Help:    "Time taken to ingest a repository in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	IngestionFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_ingestion_files_total",
			Help: "Total files processed during ingestion by status",
		},
		[]string{"status"},
	)

	IngestionSymbolsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kotadb_ingestion_symbols_extracted_total",
			Help: "Total symbols extracted across all ingestion runs",
		},
	)

	// Query router metrics.
	QueryRouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_query_route_total",
			Help: "Total queries routed by destination index",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		StorageOpDuration,
		StorageOpsTotal,
		IndexOpDuration,
		IndexOpsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		DocumentsTotal,
		SymbolsTotal,
		GraphNodesTotal,
		GraphEdgesTotal,
		IngestionDuration,
		IngestionFilesTotal,
		IngestionSymbolsExtracted,
		QueryRouteTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStorageOp records one document store operation's outcome and
// duration, used by wrap.MeteredStorage.
func ObserveStorageOp(component, op string, d time.Duration, err error) {
	StorageOpDuration.WithLabelValues(component, op).Observe(d.Seconds())
	StorageOpsTotal.WithLabelValues(component, op, statusLabel(err)).Inc()
}

// ObserveIndexOp records one index operation's outcome and duration,
// used by wrap.MeteredIndex.
func ObserveIndexOp(component, op string, d time.Duration, err error) {
	IndexOpDuration.WithLabelValues(component, op).Observe(d.Seconds())
	IndexOpsTotal.WithLabelValues(component, op, statusLabel(err)).Inc()
}

// RecordCacheHit and RecordCacheMiss feed the Cache wrapper's counters.
func RecordCacheHit(component string)  { CacheHitsTotal.WithLabelValues(component).Inc() }
func RecordCacheMiss(component string) { CacheMissesTotal.WithLabelValues(component).Inc() }

// RecordQueryRoute tags which index route the query router chose.
func RecordQueryRoute(route string) { QueryRouteTotal.WithLabelValues(route).Inc() }
