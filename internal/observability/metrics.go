// Package observability exposes Prometheus instruments for the playlist workflow and the catalog client.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the CLI.
//
// Instruments are registered on a private registry so each process (or test) gets a fresh set.
type Metrics struct {
	registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	APIRequests      *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow state transitions by source and target state.",
		}, []string{"from", "to"}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_operations_total",
			Help:      "Workflow operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_operation_duration_seconds",
			Help:      "Workflow operation duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"operation"}),
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Catalog API requests by route and status code.",
		}, []string{"route", "status"}),
		APILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_duration_ms",
			Help:      "Catalog API request latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
		}, []string{"route"}),
	}
}

// RecordTransition counts a workflow state change.
func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordOperation counts a finished workflow operation and observes its duration.
func (m *Metrics) RecordOperation(op, outcome string, elapsed time.Duration) {
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRequest counts a catalog request. A zero status is recorded as "transport_error".
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	code := "transport_error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(route, code).Inc()
	m.APILatency.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
