package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_jobs_total",
			Help: "Total number of jobs by scheduler and state",
		},
		[]string{"scheduler", "state"},
	)

	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_submitted_total",
			Help: "Total number of jobs submitted by app and scheduler",
		},
		[]string{"app", "scheduler"},
	)

	JobsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_rejected_total",
			Help: "Total number of submissions rejected by reason",
		},
		[]string{"reason"},
	)

	SubmissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_submission_duration_seconds",
			Help:    "Time taken to process a submission request in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_api_requests_total",
			Help: "Total number of API requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Adapter metrics
	AdapterCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_adapter_call_duration_seconds",
			Help:    "Time taken for a scheduler adapter call in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheduler", "operation"},
	)

	AdapterCallsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_adapter_calls_failed_total",
			Help: "Total number of failed scheduler adapter calls",
		},
		[]string{"scheduler", "operation"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ReconciliationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_transitions_total",
			Help: "Total number of job state transitions applied by reconciliation",
		},
		[]string{"scheduler", "state"},
	)

	// Packaging metrics
	PackagingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_packaging_duration_seconds",
			Help:    "Time taken to package job output in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PackagingFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_packaging_failed_total",
			Help: "Total number of output packaging failures",
		},
	)

	// Accounting metrics
	AccountingCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_accounting_cycle_duration_seconds",
			Help:    "Time taken for an accounting cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Token metrics
	TokensMintedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_hpc_tokens_minted_total",
			Help: "Total number of HPC adapter tokens minted",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsRejectedTotal)
	prometheus.MustRegister(SubmissionDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(AdapterCallDuration)
	prometheus.MustRegister(AdapterCallsFailed)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationTransitionsTotal)
	prometheus.MustRegister(PackagingDuration)
	prometheus.MustRegister(PackagingFailedTotal)
	prometheus.MustRegister(AccountingCycleDuration)
	prometheus.MustRegister(TokensMintedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
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
