// Package metrics holds the Prometheus collectors exported by dialectica.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task metrics.
var (
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialectica_tasks_processed_total",
		Help: "Units of work handled by the dispatcher, by kind and outcome",
	}, []string{"kind", "outcome"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dialectica_task_duration_seconds",
		Help:    "Time to handle one unit of work",
		Buckets: []float64{0.01, 0.1, 1, 5, 15, 60, 300, 600},
	}, []string{"kind"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialectica_tasks_enqueued_total",
		Help: "Units of work enqueued, by kind",
	}, []string{"kind"})
)

// Provider metrics.
var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialectica_provider_calls_total",
		Help: "LLM and tool provider calls, by provider, call type and outcome",
	}, []string{"provider", "call_type", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dialectica_provider_call_duration_seconds",
		Help:    "Provider call latency",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
	}, []string{"provider", "call_type"})

	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialectica_fallbacks_total",
		Help: "Deterministic fallbacks taken in place of a provider answer, by decision",
	}, []string{"decision"})
)

// Lifecycle metrics.
var (
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialectica_transitions_total",
		Help: "Job and dossier status transitions performed",
	}, []string{"entity", "to"})

	ReconcileActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialectica_reconcile_actions_total",
		Help: "Repairs performed by the reconciliation sweep, by action",
	}, []string{"action"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
