package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch scheduler metrics
	BatchJobsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simbatch_batch_jobs_scheduled_total",
			Help: "Total number of batch jobs that transitioned from queued to running",
		},
	)

	BatchJobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simbatch_batch_jobs_failed_total",
			Help: "Total number of batch jobs that left the running set abnormally, by cause",
		},
		[]string{"cause"},
	)

	BatchSchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simbatch_batch_scheduling_latency_seconds",
			Help:    "Wall-clock time spent inside one processQueuedJobs tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "simbatch_batch_queue_depth",
			Help: "Number of batch jobs currently queued (not yet running)",
		},
	)

	BatchNodesAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "simbatch_batch_nodes_available",
			Help: "Number of cluster nodes with no job currently occupying any core",
		},
	)

	// Serverless scheduler metrics
	ServerlessInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simbatch_serverless_invocations_total",
			Help: "Total number of invocations by terminal outcome",
		},
		[]string{"outcome"},
	)

	ServerlessInvocationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simbatch_serverless_invocation_latency_seconds",
			Help:    "Elapsed time from submit to finish for a serverless invocation",
			Buckets: prometheus.DefBuckets,
		},
	)

	ServerlessCoreUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simbatch_serverless_core_utilization",
			Help: "Cores in use per node",
		},
		[]string{"node"},
	)

	ServerlessImageCopiesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simbatch_serverless_image_copies_total",
			Help: "Total number of image-copy-to-node operations initiated by the scheduler",
		},
	)

	ServerlessImageCopyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simbatch_serverless_image_copy_duration_seconds",
			Help:    "Duration of an image copy from resident cache to a node's local disk",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		BatchJobsScheduled,
		BatchJobsFailed,
		BatchSchedulingLatency,
		BatchQueueDepth,
		BatchNodesAvailable,
		ServerlessInvocationsTotal,
		ServerlessInvocationLatency,
		ServerlessCoreUtilization,
		ServerlessImageCopiesTotal,
		ServerlessImageCopyDuration,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing an operation and recording its
// duration to a histogram once it completes.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to the histogram of vec
// selected by labels.
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
