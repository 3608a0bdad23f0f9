package jsonrpc

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/moonraker/metric"
)

// Option is a functional option for configuring the Client
type Option func(*Client) error

// WithLogger sets a custom logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithHeader sets HTTP headers sent with the websocket handshake
func WithHeader(header http.Header) Option {
	return func(c *Client) error {
		c.header = header
		return nil
	}
}

// WithHandshakeTimeout sets the websocket handshake timeout
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("handshake timeout must be positive, got %v", d)
		}
		c.dialer.HandshakeTimeout = d
		return nil
	}
}

// WithConnectHandler sets a callback invoked after the socket opens
func WithConnectHandler(fn func()) Option {
	return func(c *Client) error {
		c.connectHandler = fn
		return nil
	}
}

// WithCloseHandler sets a callback invoked when the session ends. The error
// is nil for a locally initiated or normal close, non-nil for an abnormal one.
func WithCloseHandler(fn func(err error)) Option {
	return func(c *Client) error {
		c.closeHandler = fn
		return nil
	}
}

// WithMetrics registers transport metrics with the given registry
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		c.metrics = metrics
		return nil
	}
}
