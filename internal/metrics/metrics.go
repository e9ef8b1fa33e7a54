// Package metrics holds the Prometheus metrics of integration evaluations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the evaluation pipeline.
type Metrics struct {
	Evaluations *prometheus.CounterVec // Completed evaluations by verdict and budget source
	Failures    *prometheus.CounterVec // Failed evaluations by pipeline stage
	Duration    prometheus.Histogram   // End-to-end evaluation latency
	CapEx       prometheus.Histogram   // CapEx of completed evaluations
}

// NewMetrics creates and registers the evaluation metrics.
// The registerer parameter allows flexible registration (e.g., global registry, test registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pfarch_evaluations_total",
		Help: "Total number of completed integration evaluations",
	}, []string{"verdict", "budget_source"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pfarch_evaluation_failures_total",
		Help: "Total number of evaluations that failed, by stage",
	}, []string{"stage"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pfarch_evaluation_duration_seconds",
		Help:    "Duration of integration evaluations",
		Buckets: prometheus.DefBuckets,
	})

	// 100k to ~100M dollars
	capex := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pfarch_capex_total",
		Help:    "CapEx required by evaluated integrations, in dollars",
		Buckets: prometheus.ExponentialBuckets(100_000, 2, 11),
	})

	reg.MustRegister(evaluations)
	reg.MustRegister(failures)
	reg.MustRegister(duration)
	reg.MustRegister(capex)

	return &Metrics{
		Evaluations: evaluations,
		Failures:    failures,
		Duration:    duration,
		CapEx:       capex,
	}
}

// ObserveEvaluation records a completed evaluation.
func (m *Metrics) ObserveEvaluation(verdict, budgetSource string, capex, seconds float64) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(verdict, budgetSource).Inc()
	m.CapEx.Observe(capex)
	m.Duration.Observe(seconds)
}

// ObserveFailure records an evaluation that failed at stage.
func (m *Metrics) ObserveFailure(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(stage).Inc()
	m.Duration.Observe(seconds)
}
