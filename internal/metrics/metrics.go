// Package metrics exposes Prometheus collectors for the hosted vw session.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wappa"

// Metrics holds the service collectors and the registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	examplesTotal    *prometheus.CounterVec   // By outcome (ok/error)
	predictionsTotal *prometheus.CounterVec   // By outcome (ok/error)
	checkpointsTotal *prometheus.CounterVec   // By status
	errorsTotal      *prometheus.CounterVec   // By operation
	exchangeDuration *prometheus.HistogramVec // By operation (train/predict)
	importance       prometheus.Histogram
	sessionUp        prometheus.Gauge
}

// New creates the collectors and registers them, with the Go runtime and
// process collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		examplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "examples_total",
			Help:      "Total number of labelled examples sent to vw",
		}, []string{"outcome"}),

		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "predictions_total",
			Help:      "Total number of prediction requests sent to vw",
		}, []string{"outcome"}),

		checkpointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoint status transitions",
		}, []string{"status"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Total number of failed engine operations",
		}, []string{"operation"}),

		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exchange_duration_seconds",
			Help:      "Time from sending a line to reading its response",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),

		importance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "active",
			Name:      "importance",
			Help:      "Importance weights returned in active learning mode",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2, 5, 10, 100},
		}),

		sessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "session_up",
			Help:      "1 while the vw session is active",
		}),
	}

	m.registry.MustRegister(
		m.examplesTotal,
		m.predictionsTotal,
		m.checkpointsTotal,
		m.errorsTotal,
		m.exchangeDuration,
		m.importance,
		m.sessionUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordExample records one training exchange.
func (m *Metrics) RecordExample(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.examplesTotal.WithLabelValues(outcome(err)).Inc()
	m.exchangeDuration.WithLabelValues("train").Observe(d.Seconds())
	if err != nil {
		m.errorsTotal.WithLabelValues("train").Inc()
	}
}

// RecordPrediction records one prediction exchange.
func (m *Metrics) RecordPrediction(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.predictionsTotal.WithLabelValues(outcome(err)).Inc()
	m.exchangeDuration.WithLabelValues("predict").Observe(d.Seconds())
	if err != nil {
		m.errorsTotal.WithLabelValues("predict").Inc()
	}
}

// RecordImportance records an active learning importance weight.
func (m *Metrics) RecordImportance(v float64) {
	if m == nil {
		return
	}
	m.importance.Observe(v)
}

// RecordCheckpoint records a checkpoint entering status.
func (m *Metrics) RecordCheckpoint(status string) {
	if m == nil {
		return
	}
	m.checkpointsTotal.WithLabelValues(status).Inc()
}

// RecordError records a failure of an operation without an exchange.
func (m *Metrics) RecordError(operation string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(operation).Inc()
}

// SetSessionUp sets the session gauge.
func (m *Metrics) SetSessionUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.sessionUp.Set(1)
	} else {
		m.sessionUp.Set(0)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
