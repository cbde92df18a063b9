// Package metrics holds the Prometheus collectors kura exports.
//
// Collectors live on their own registry so tests and embedders can create
// as many instances as they like. All recording methods are safe on a nil
// *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kura"

// Metrics bundles every kura collector.
type Metrics struct {
	registry *prometheus.Registry

	// Classifications counts classifier decisions.
	// Labels: source (existing, pattern, new)
	Classifications *prometheus.CounterVec

	// Confidence observes the confidence of each decision.
	Confidence prometheus.Histogram

	// Reclassifications counts per-room batch outcomes.
	// Labels: result (reclassified, skipped, error)
	Reclassifications *prometheus.CounterVec

	// BatchDuration observes batch reclassification wall time.
	BatchDuration prometheus.Histogram

	// ConsolidatedProjects counts temporary projects folded into the default.
	ConsolidatedProjects prometheus.Counter

	// MergedRooms counts rooms moved by consolidation.
	MergedRooms prometheus.Counter

	// MemorySaves counts save outcomes.
	// Labels: tier, result (stored, refreshed, rejected)
	MemorySaves *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "classifier",
				Name:      "decisions_total",
				Help:      "Total number of classification decisions by source",
			},
			[]string{"source"},
		),
		Confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "classifier",
				Name:      "confidence",
				Help:      "Confidence of classification decisions",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),
		Reclassifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "rooms_total",
				Help:      "Total number of rooms processed by batch reclassification by result",
			},
			[]string{"result"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch reclassification runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ConsolidatedProjects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consolidator",
				Name:      "projects_total",
				Help:      "Total number of temporary projects consolidated",
			},
		),
		MergedRooms: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consolidator",
				Name:      "rooms_merged_total",
				Help:      "Total number of rooms moved into the default project",
			},
		),
		MemorySaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "memory",
				Name:      "saves_total",
				Help:      "Total number of memory save attempts by tier and result",
			},
			[]string{"tier", "result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Classifications,
		m.Confidence,
		m.Reclassifications,
		m.BatchDuration,
		m.ConsolidatedProjects,
		m.MergedRooms,
		m.MemorySaves,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordClassification counts one classifier decision.
func (m *Metrics) RecordClassification(source string, confidence float64) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(source).Inc()
	m.Confidence.Observe(confidence)
}

// RecordBatch records the outcome of one batch reclassification run.
func (m *Metrics) RecordBatch(reclassified, skipped, errors int, seconds float64) {
	if m == nil {
		return
	}
	m.Reclassifications.WithLabelValues("reclassified").Add(float64(reclassified))
	m.Reclassifications.WithLabelValues("skipped").Add(float64(skipped))
	m.Reclassifications.WithLabelValues("error").Add(float64(errors))
	m.BatchDuration.Observe(seconds)
}

// RecordConsolidation records the outcome of one consolidation run.
func (m *Metrics) RecordConsolidation(projects, rooms int) {
	if m == nil {
		return
	}
	m.ConsolidatedProjects.Add(float64(projects))
	m.MergedRooms.Add(float64(rooms))
}

// RecordMemorySave counts one save attempt.
func (m *Metrics) RecordMemorySave(tier, result string) {
	if m == nil {
		return
	}
	m.MemorySaves.WithLabelValues(tier, result).Inc()
}
