// Package config loads and validates the daemon configuration from a JSON
// file, with environment variable overrides for deployment settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "MOONRAKER"

// Default values applied before the file and environment are read.
const (
	DefaultPort           = 7125
	DefaultTimeout        = 30 * time.Second
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
	DefaultSubjectPrefix  = "moonraker"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultReconnectDelay = 5 * time.Second
	DefaultMaxReconnect   = 5 * time.Minute
)

// Config is the complete daemon configuration.
type Config struct {
	Printer PrinterConfig `json:"printer"`
	NATS    NATSConfig    `json:"nats,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// PrinterConfig describes the Moonraker instance to connect to.
type PrinterConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port,omitempty"`
	APIKey         string        `json:"api_key,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	MonitoredRoots []string      `json:"monitored_roots,omitempty"`

	// Reconnect settings for the daemon's connect loop.
	ReconnectDelay time.Duration `json:"reconnect_delay,omitempty"`
	MaxReconnect   time.Duration `json:"max_reconnect,omitempty"`
}

// NATSConfig describes the optional event bridge.
type NATSConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	Source        string `json:"source,omitempty"`
}

// MetricsConfig describes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingConfig describes the slog setup.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Default returns a configuration with all defaults applied and no printer
// host. The host must come from the file, the environment, or a flag.
func Default() *Config {
	return &Config{
		Printer: PrinterConfig{
			Port:           DefaultPort,
			Timeout:        DefaultTimeout,
			ReconnectDelay: DefaultReconnectDelay,
			MaxReconnect:   DefaultMaxReconnect,
		},
		NATS: NATSConfig{
			SubjectPrefix: DefaultSubjectPrefix,
		},
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
			Path: DefaultMetricsPath,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads the configuration file at path and applies environment
// overrides. An empty path skips the file and uses defaults plus environment
// only. The caller validates after applying any further overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies MOONRAKER_* environment variables on top of the
// file values.
func (c *Config) applyEnvOverrides() {
	if val := os.Getenv(envPrefix + "_HOST"); val != "" {
		c.Printer.Host = val
	}
	if val := os.Getenv(envPrefix + "_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Printer.Port = port
		}
	}
	if val := os.Getenv(envPrefix + "_API_KEY"); val != "" {
		c.Printer.APIKey = val
	}
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		c.NATS.Enabled = true
		c.NATS.URL = val
	}
	if val := os.Getenv(envPrefix + "_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv(envPrefix + "_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
}

// Validate checks the configuration for completeness and consistency.
func (c *Config) Validate() error {
	if c.Printer.Host == "" {
		return errors.New("printer.host is required")
	}
	if c.Printer.Port <= 0 || c.Printer.Port > 65535 {
		return fmt.Errorf("printer.port %d is out of range", c.Printer.Port)
	}
	if c.Printer.Timeout <= 0 {
		return errors.New("printer.timeout must be positive")
	}
	if c.Printer.ReconnectDelay <= 0 {
		return errors.New("printer.reconnect_delay must be positive")
	}
	if c.Printer.MaxReconnect < c.Printer.ReconnectDelay {
		return errors.New("printer.max_reconnect must not be below printer.reconnect_delay")
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.url is required when the bridge is enabled")
		}
		if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
			return fmt.Errorf("nats.url %q must use the nats:// or tls:// scheme", c.NATS.URL)
		}
		if c.NATS.SubjectPrefix == "" {
			return errors.New("nats.subject_prefix is required when the bridge is enabled")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// UnmarshalJSON accepts durations either as nanosecond numbers or as Go
// duration strings ("30s", "5m").
func (p *PrinterConfig) UnmarshalJSON(data []byte) error {
	type alias PrinterConfig
	aux := struct {
		Timeout        json.RawMessage `json:"timeout,omitempty"`
		ReconnectDelay json.RawMessage `json:"reconnect_delay,omitempty"`
		MaxReconnect   json.RawMessage `json:"max_reconnect,omitempty"`
		*alias
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	for _, field := range []struct {
		raw json.RawMessage
		dst *time.Duration
	}{
		{aux.Timeout, &p.Timeout},
		{aux.ReconnectDelay, &p.ReconnectDelay},
		{aux.MaxReconnect, &p.MaxReconnect},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := unmarshalDuration(field.raw, field.dst); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalDuration(raw json.RawMessage, dst *time.Duration) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*dst = d
		return nil
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("duration must be a string or nanosecond count: %s", raw)
	}
	*dst = time.Duration(n)
	return nil
}
