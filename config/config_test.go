package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{"printer": {"host": "klipper.local"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "klipper.local", cfg.Printer.Host)
	assert.Equal(t, DefaultPort, cfg.Printer.Port)
	assert.Equal(t, DefaultTimeout, cfg.Printer.Timeout)
	assert.Equal(t, DefaultSubjectPrefix, cfg.NATS.SubjectPrefix)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `{
		"printer": {
			"host": "octopi.local",
			"port": 7126,
			"api_key": "secret",
			"timeout": "10s",
			"monitored_roots": ["gcodes", "config"],
			"reconnect_delay": "2s",
			"max_reconnect": "1m"
		},
		"nats": {"enabled": true, "url": "nats://localhost:4222", "subject_prefix": "printers.shop"},
		"metrics": {"enabled": true, "port": 9100, "path": "/metrics"},
		"logging": {"level": "debug", "format": "json"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7126, cfg.Printer.Port)
	assert.Equal(t, "secret", cfg.Printer.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Printer.Timeout)
	assert.Equal(t, []string{"gcodes", "config"}, cfg.Printer.MonitoredRoots)
	assert.Equal(t, 2*time.Second, cfg.Printer.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.Printer.MaxReconnect)
	assert.Equal(t, "printers.shop", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DurationAsNanoseconds(t *testing.T) {
	path := writeConfig(t, `{"printer": {"host": "h", "timeout": 5000000000}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Printer.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MOONRAKER_HOST", "env-host")
	t.Setenv("MOONRAKER_PORT", "7200")
	t.Setenv("MOONRAKER_API_KEY", "env-key")
	t.Setenv("MOONRAKER_NATS_URL", "nats://broker:4222")
	t.Setenv("MOONRAKER_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Printer.Host)
	assert.Equal(t, 7200, cfg.Printer.Port)
	assert.Equal(t, "env-key", cfg.Printer.APIKey)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"printer": `)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Printer.Host = "" },
			wantErr: "printer.host is required",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Printer.Port = 70000 },
			wantErr: "printer.port 70000 is out of range",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Printer.Timeout = 0 },
			wantErr: "printer.timeout must be positive",
		},
		{
			name: "reconnect ceiling below delay",
			mutate: func(c *Config) {
				c.Printer.ReconnectDelay = time.Minute
				c.Printer.MaxReconnect = time.Second
			},
			wantErr: "printer.max_reconnect must not be below printer.reconnect_delay",
		},
		{
			name:    "bridge without url",
			mutate:  func(c *Config) { c.NATS.Enabled = true },
			wantErr: "nats.url is required when the bridge is enabled",
		},
		{
			name: "bridge with bad scheme",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.URL = "http://localhost:4222"
			},
			wantErr: "must use the nats:// or tls:// scheme",
		},
		{
			name: "metrics path without slash",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Path = "metrics"
			},
			wantErr: "must start with /",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Printer.Host = "klipper.local"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_TLSURL(t *testing.T) {
	cfg := Default()
	cfg.Printer.Host = "h"
	cfg.NATS.Enabled = true
	cfg.NATS.URL = "tls://broker:4222"
	require.NoError(t, cfg.Validate())
}
