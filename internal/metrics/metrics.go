package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_engine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_engine_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Range-serving metrics
var (
	RangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_range_requests_total",
			Help: "Total number of media byte-range requests served",
		},
		[]string{"kind"}, // "full", "partial"
	)

	RangeBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_engine_range_bytes_total",
			Help: "Total media bytes written to clients",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_engine_active_streams",
			Help: "Number of media streams currently being served",
		},
	)
)

// Transcode metrics
var (
	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_transcode_jobs_total",
			Help: "Total number of transcode jobs by outcome",
		},
		[]string{"kind", "outcome"}, // kind: "rendition", "hls"; outcome: "ready", "failed"
	)

	TranscodeJobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_engine_transcode_jobs_running",
			Help: "Number of encoder jobs currently running on this instance",
		},
	)

	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_engine_transcode_duration_seconds",
			Help:    "Wall-clock duration of encoder jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"kind"},
	)
)

// Ephemeral cache metrics
var (
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_cache_ops_total",
			Help: "Ephemeral cache operations by result",
		},
		[]string{"op", "result"}, // op: "get", "setnx"; result: "hit", "miss", "won", "lost", "error"
	)
)

// Thumbnail metrics
var (
	ThumbnailRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_thumbnail_requests_total",
			Help: "Thumbnail requests by result",
		},
		[]string{"result"}, // "hit", "generated", "error"
	)
)

// Access control metrics
var (
	AccessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_access_checks_total",
			Help: "Access resolution decisions",
		},
		[]string{"decision"}, // "allow", "deny"
	)

	ShareTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_engine_share_tokens_issued_total",
			Help: "Total number of share tokens issued",
		},
	)

	ShareRedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_share_redemptions_total",
			Help: "Share token redemption attempts by result",
		},
		[]string{"result"}, // "ok", "not_found", "expired", "exhausted", "error"
	)
)

// Metadata store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_db_queries_total",
			Help: "Total number of metadata store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_engine_db_query_duration_seconds",
			Help:    "Metadata store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Filesystem metrics
var (
	FilesystemRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_engine_filesystem_retries_total",
			Help: "Filesystem operations retried after stale NFS handles",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_engine_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPressure = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_engine_memory_pressure",
			Help: "1 when heap usage is above the high water mark, 0 otherwise",
		},
	)
)
