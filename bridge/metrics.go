package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/moonraker/metric"
)

type bridgeMetrics struct {
	published       *prometheus.CounterVec
	publishFailures prometheus.Counter
	connected       prometheus.Gauge
}

func newBridgeMetrics(registry *metric.Registry) (*bridgeMetrics, error) {
	const component = "bridge"

	m := &bridgeMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "bridge",
			Name:      "events_published_total",
			Help:      "Total events published to NATS by event name",
		}, []string{"event"}),

		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "bridge",
			Name:      "publish_failures_total",
			Help:      "Total events that could not be published",
		}),

		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moonraker",
			Subsystem: "bridge",
			Name:      "connected",
			Help:      "Whether the NATS connection is up (1) or down (0)",
		}),
	}

	if err := registry.RegisterCounterVec(component, "events_published", m.published); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "publish_failures", m.publishFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "connected", m.connected); err != nil {
		return nil, err
	}

	return m, nil
}
