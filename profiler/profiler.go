// Package profiler - Prometheus metrics for pipeline stages, requests and model state.
package profiler

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "detect"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stages         *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	detections     *prometheus.CounterVec
	modelLoads     *prometheus.CounterVec
	modelAvailable prometheus.Gauge
}

// New creates a new Metrics instance with Prometheus collectors.
//
// Returns:
// - A Metrics instance with the Go and process collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"stage"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Detection requests by outcome",
		}, []string{"outcome"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "detections_total",
			Help:      "Detections returned, by label",
		}, []string{"label"}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "model_load_attempts_total",
			Help:      "Checkpoint load attempts by model and result",
		}, []string{"model", "result"}),
		modelAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "model_available",
			Help:      "1 when a detector model is loaded, 0 when degraded",
		}),
	}

	m.registry.MustRegister(
		m.stages,
		m.requests,
		m.detections,
		m.modelLoads,
		m.modelAvailable,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// StartOperation begins timing a pipeline stage.
//
// Arguments:
// - name: The stage to track, e.g. "decode" or "inference".
//
// Returns:
// - A function to call when the stage completes; it records and returns the elapsed time.
func (m *Metrics) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		m.stages.WithLabelValues(name).Observe(d.Seconds())
		return d
	}
}

// RecordRequest counts a finished request by outcome ("ok", "invalid_image", ...).
func (m *Metrics) RecordRequest(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

// RecordDetection counts one returned detection.
func (m *Metrics) RecordDetection(label string) {
	m.detections.WithLabelValues(label).Inc()
}

// RecordModelLoad counts one checkpoint load attempt.
func (m *Metrics) RecordModelLoad(model string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.modelLoads.WithLabelValues(model, result).Inc()
}

// SetModelAvailable flips the availability gauge.
func (m *Metrics) SetModelAvailable(ok bool) {
	if ok {
		m.modelAvailable.Set(1)
		return
	}
	m.modelAvailable.Set(0)
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
