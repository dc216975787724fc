package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repoctx_extraction_seconds",
		Help:    "Time spent extracting a single source file, parse included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	FilesExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repoctx_files_extracted_total",
		Help: "Total number of files extracted, failed records included.",
	}, []string{"language"})

	ExtractionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repoctx_extraction_errors_total",
		Help: "Total number of files whose record carries an error, by error code.",
	}, []string{"language", "code"})

	CallEdgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repoctx_call_edges_total",
		Help: "Total number of resolved intra-file call edges.",
	}, []string{"language"})

	ParserLeases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repoctx_parser_leases",
		Help: "Tree-sitter parsers currently leased from the pool.",
	}, []string{"language"})

	RecordCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repoctx_record_cache_hits_total",
		Help: "Total number of extractions served from the content-hash cache.",
	})

	RecordCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repoctx_record_cache_misses_total",
		Help: "Total number of extractions that missed the content-hash cache.",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repoctx_batch_seconds",
		Help:    "Time spent on a full batch extraction run.",
		Buckets: prometheus.DefBuckets,
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repoctx_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	WatcherThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repoctx_watcher_throttled_total",
		Help: "Total number of re-extraction batches delayed by the rate limiter.",
	})

	StoreWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repoctx_store_writes_total",
		Help: "Total number of record store writes by operation.",
	}, []string{"op"})
)
