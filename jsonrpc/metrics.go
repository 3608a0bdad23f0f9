package jsonrpc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/moonraker/metric"
)

// Metrics holds Prometheus metrics for the transport
type Metrics struct {
	callsTotal         *prometheus.CounterVec
	callErrorsTotal    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	orphanResponses    prometheus.Counter
	connectionsTotal   prometheus.Counter
	pendingCalls       prometheus.Gauge
	errorsTotal        *prometheus.CounterVec
}

// newMetrics creates and registers transport metrics
func newMetrics(registry *metric.Registry) (*Metrics, error) {
	const component = "jsonrpc"

	m := &Metrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "calls_total",
			Help:      "Total RPC calls issued",
		}, []string{"method"}),

		callErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "call_errors_total",
			Help:      "Total peer-reported RPC errors",
		}, []string{"method"}),

		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "notifications_total",
			Help:      "Total notifications received",
		}, []string{"method"}),

		orphanResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "orphan_responses_total",
			Help:      "Responses dropped because no pending call matched their id",
		}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "connections_total",
			Help:      "Total websocket sessions opened",
		}),

		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "pending_calls",
			Help:      "In-flight RPC calls awaiting a response",
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "jsonrpc",
			Name:      "errors_total",
			Help:      "Total receive-path errors by type",
		}, []string{"type"}),
	}

	if err := registry.RegisterCounterVec(component, "calls", m.callsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "call_errors", m.callErrorsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "notifications", m.notificationsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "orphan_responses", m.orphanResponses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "connections", m.connectionsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "pending_calls", m.pendingCalls); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "errors", m.errorsTotal); err != nil {
		return nil, err
	}

	return m, nil
}
