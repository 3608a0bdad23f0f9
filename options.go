package moonraker

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/moonraker/errors"
	"github.com/c360/moonraker/metric"
)

// Option configures a Client.
type Option func(*Client) error

// WithPort overrides the default Moonraker port of 7125.
func WithPort(port int) Option {
	return func(c *Client) error {
		if port <= 0 || port > 65535 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithPort", "port range check")
		}
		c.port = port
		return nil
	}
}

// WithAPIKey sets the API key sent during identification and on HTTP file
// transfers.
func WithAPIKey(key string) Option {
	return func(c *Client) error {
		c.apiKey = key
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "WithLogger", "logger check")
		}
		c.logger = logger
		return nil
	}
}

// WithClientInfo sets the name and version reported to Moonraker during
// identification.
func WithClientInfo(name, version string) Option {
	return func(c *Client) error {
		if name == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "WithClientInfo", "name check")
		}
		c.clientName = name
		c.clientVersion = version
		return nil
	}
}

// WithTimeout sets the deadline applied to each internal handshake and
// query call. Defaults to 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithTimeout", "timeout check")
		}
		c.timeout = timeout
		return nil
	}
}

// WithHTTPClient overrides the HTTP client used for file transfers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "WithHTTPClient", "client check")
		}
		c.httpClient = hc
		return nil
	}
}

// WithMonitoredRoots sets the storage roots whose file trees are tracked.
// Defaults to the gcodes root only.
func WithMonitoredRoots(roots ...string) Option {
	return func(c *Client) error {
		if len(roots) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "WithMonitoredRoots", "roots check")
		}
		c.roots = make(map[string]struct{}, len(roots))
		for _, r := range roots {
			c.roots[r] = struct{}{}
		}
		return nil
	}
}

// WithMetrics wires the client and its transport into a metric registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		if registry == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "WithMetrics", "registry check")
		}
		c.registry = registry
		return nil
	}
}
