// Package metric provides Prometheus-based metrics collection and an HTTP
// server for monitoring the Moonraker connector.
//
// Components define their own Metrics structs and register them through the
// Registry. The daemon exposes the combined registry via the Server on
// /metrics, alongside a /health endpoint.
//
// Basic usage:
//
//	registry := metric.NewRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
package metric
