// Package metrics registers the Prometheus instruments exposed on
// GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the service's instruments with their registry so tests
// can construct isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	// QueriesTotal counts protected queries by lineage action.
	QueriesTotal *prometheus.CounterVec
	// QuarantinesTotal counts documents quarantined.
	QuarantinesTotal prometheus.Counter
	// ScoringDuration observes the per-query scoring fan-out latency.
	ScoringDuration prometheus.Histogram
	// GenerationDuration observes LLM answer latency.
	GenerationDuration prometheus.Histogram
	// HTTPRequests counts API requests by route and status class.
	HTTPRequests *prometheus.CounterVec
}

// New builds and registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragshield_queries_total",
			Help: "Protected queries processed, by lineage action.",
		}, []string{"action"}),
		QuarantinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragshield_quarantines_total",
			Help: "Documents quarantined.",
		}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragshield_scoring_duration_seconds",
			Help:    "Per-query integrity scoring latency.",
			Buckets: prometheus.DefBuckets,
		}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragshield_generation_duration_seconds",
			Help:    "LLM answer generation latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragshield_http_requests_total",
			Help: "API requests by route and status class.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(m.QueriesTotal, m.QuarantinesTotal, m.ScoringDuration,
		m.GenerationDuration, m.HTTPRequests)
	return m
}
