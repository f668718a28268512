package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	evaluationRequestsTotal  *prometheus.CounterVec
	evaluationLatencySeconds *prometheus.HistogramVec
	evaluationErrorsTotal    *prometheus.CounterVec
	evaluationsTotal         *prometheus.CounterVec
	approachSelectionsTotal  *prometheus.CounterVec
	securityRejectionsTotal  *prometheus.CounterVec
	submissionQueueDepth     prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		evaluationRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "http_requests_total",
			Help:      "Total number of evaluation API requests served.",
		}, []string{"method", "route", "status"})

		evaluationLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grader",
			Name:      "http_latency_seconds",
			Help:      "Latency distribution for evaluation API requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		evaluationErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "http_errors_total",
			Help:      "Total number of error responses returned by evaluation endpoints.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "evaluations_total",
			Help:      "Completed evaluations by outcome.",
		}, []string{"status"})

		approachSelectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "approach_selected_total",
			Help:      "Rubric approach selections by outcome.",
		}, []string{"outcome"})

		securityRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "security_rejections_total",
			Help:      "Submissions rejected by the injection guard, by check.",
		}, []string{"check"})

		submissionQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grader",
			Name:      "submission_queue_depth",
			Help:      "Submissions waiting for an evaluation worker.",
		})

		prometheus.MustRegister(
			evaluationRequestsTotal,
			evaluationLatencySeconds,
			evaluationErrorsTotal,
			evaluationsTotal,
			approachSelectionsTotal,
			securityRejectionsTotal,
			submissionQueueDepth,
		)
	})
}

// EvaluationRequests exposes the counter for evaluation API requests.
func EvaluationRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationRequestsTotal
}

// EvaluationLatency exposes the latency histogram for evaluation API requests.
func EvaluationLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationLatencySeconds
}

// EvaluationErrors exposes the counter for evaluation API error responses.
func EvaluationErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationErrorsTotal
}

// Evaluations counts finished evaluations by status (completed, error, rejected).
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// ApproachSelections counts matched and fallback approach selections.
func ApproachSelections() *prometheus.CounterVec {
	RegisterMetrics()
	return approachSelectionsTotal
}

// SecurityRejections counts rejections per check (static, detection).
func SecurityRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return securityRejectionsTotal
}

// SubmissionQueueDepth tracks queued submissions.
func SubmissionQueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return submissionQueueDepth
}
