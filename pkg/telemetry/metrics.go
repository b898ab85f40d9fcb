package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the deployment lifecycle.
type Metrics struct {
	config MetricsConfig

	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec
	operationsInFlight  prometheus.Gauge

	transitions *prometheus.CounterVec

	remoteCalls        *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When disabled, all recording methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of deploy/destroy operations started",
			},
			[]string{"operation"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of operations observed reaching a terminal status",
			},
			[]string{"operation", "status"},
		),
		operationsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "operations_in_flight",
				Help:      "Number of background trigger sequences currently executing",
			},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Total number of deployment status transitions persisted",
			},
			[]string{"from", "to"},
		),
		remoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of provisioning backend calls",
			},
			[]string{"call", "outcome"},
		),
		remoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Duration of provisioning backend calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"call"},
		),
	}

	registry.MustRegister(
		m.operationsStarted,
		m.operationsCompleted,
		m.operationsInFlight,
		m.transitions,
		m.remoteCalls,
		m.remoteCallDuration,
	)

	return m, nil
}

// OperationStarted records a deploy or destroy trigger being accepted.
func (m *Metrics) OperationStarted(operation string) {
	if m.registry == nil {
		return
	}
	m.operationsStarted.WithLabelValues(operation).Inc()
	m.operationsInFlight.Inc()
}

// OperationFinished records a background trigger sequence completing.
func (m *Metrics) OperationFinished() {
	if m.registry == nil {
		return
	}
	m.operationsInFlight.Dec()
}

// OperationCompleted records an operation reaching a terminal status.
func (m *Metrics) OperationCompleted(operation, status string) {
	if m.registry == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(operation, status).Inc()
}

// Transition records a persisted status transition.
func (m *Metrics) Transition(from, to string) {
	if m.registry == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RemoteCall records one provisioning backend call.
func (m *Metrics) RemoteCall(call, outcome string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.remoteCalls.WithLabelValues(call, outcome).Inc()
	m.remoteCallDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the metrics registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
