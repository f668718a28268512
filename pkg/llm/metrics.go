package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Duration of individual LLM completion attempts",
	}, []string{"model", "purpose"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "llm",
		Name:      "failures_total",
		Help:      "Number of failed LLM completion attempts",
	}, []string{"model", "purpose"})

	modelFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "llm",
		Name:      "fallbacks_total",
		Help:      "Number of requests that switched to the backup model",
	}, []string{"purpose"})
)
