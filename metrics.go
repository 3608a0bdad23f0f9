package moonraker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/moonraker/metric"
)

// clientMetrics tracks protocol-level activity of the Moonraker client.
type clientMetrics struct {
	handshakeAttempts prometheus.Counter
	handshakeFailures prometheus.Counter
	statusUpdates     prometheus.Counter
	treeRefreshes     *prometheus.CounterVec
	transfers         *prometheus.CounterVec
	klippyReady       prometheus.Gauge
}

// newClientMetrics creates and registers client metrics
func newClientMetrics(registry *metric.Registry) (*clientMetrics, error) {
	const component = "client"

	m := &clientMetrics{
		handshakeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "client",
			Name:      "handshake_attempts_total",
			Help:      "Handshake attempts made against the Moonraker server",
		}),

		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "client",
			Name:      "handshake_failures_total",
			Help:      "Handshake attempts that did not reach the connected state",
		}),

		statusUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "client",
			Name:      "status_updates_total",
			Help:      "Status update payloads processed",
		}),

		treeRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "client",
			Name:      "tree_refreshes_total",
			Help:      "File tree refresh operations by storage root",
		}, []string{"root"}),

		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moonraker",
			Subsystem: "client",
			Name:      "file_transfers_total",
			Help:      "HTTP file transfers by direction and result",
		}, []string{"direction", "result"}),

		klippyReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moonraker",
			Subsystem: "client",
			Name:      "klippy_ready",
			Help:      "Whether the Klipper firmware currently reports ready",
		}),
	}

	if err := registry.RegisterCounter(component, "handshake_attempts", m.handshakeAttempts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "handshake_failures", m.handshakeFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "status_updates", m.statusUpdates); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "tree_refreshes", m.treeRefreshes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "file_transfers", m.transfers); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "klippy_ready", m.klippyReady); err != nil {
		return nil, err
	}

	return m, nil
}
