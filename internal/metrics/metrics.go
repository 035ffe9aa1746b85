// Package metrics holds the Prometheus collectors of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lanne"

// Metrics is the set of pipeline collectors, registered on one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests           *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	SourceOutcomes     *prometheus.CounterVec
	SourceDuration     *prometheus.HistogramVec
	GenerationFallback *prometheus.CounterVec
	PersistenceErrors  prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Queries handled, by classified intent.",
			},
			[]string{"intent"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Latency of each pipeline stage.",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		SourceOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_calls_total",
				Help:      "Information source calls, by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		SourceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_duration_seconds",
				Help:      "Latency of information source calls.",
				Buckets:   []float64{.01, .05, .1, .25, .5, .8, 1, 2, 4, 8},
			},
			[]string{"source"},
		),
		GenerationFallback: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_fallbacks_total",
				Help:      "Answers replaced by a canned reply, by reason.",
			},
			[]string{"reason"},
		),
		PersistenceErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_errors_total",
				Help:      "Failed conversation memory commits.",
			},
		),
	}
}

func (m *Metrics) ObserveRequest(intent string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(intent).Inc()
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveSource matches executor.Options.Observer.
func (m *Metrics) ObserveSource(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourceOutcomes.WithLabelValues(source, outcome).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.GenerationFallback.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePersistenceError() {
	if m == nil {
		return
	}
	m.PersistenceErrors.Inc()
}
