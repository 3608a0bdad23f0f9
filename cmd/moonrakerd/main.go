// Package main implements moonrakerd, a daemon that maintains a connection
// to a Moonraker instance, republishes printer events onto NATS and exposes
// Prometheus metrics for the connection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/moonraker"
	"github.com/c360/moonraker/bridge"
	"github.com/c360/moonraker/config"
	"github.com/c360/moonraker/metric"
	"github.com/c360/moonraker/pkg/backoff"
	"github.com/c360/moonraker/printer"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "moonrakerd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	// CLI flags win over file and environment
	if cliCfg.Host != "" {
		cfg.Printer.Host = cliCfg.Host
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cliCfg.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()
	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
		logger.Info("metrics server listening", "address", metricsServer.Address())
	}

	sink := newDaemonSink(logger)

	var events printer.EventSink = sink
	if cfg.NATS.Enabled {
		bridgeOpts := []bridge.Option{
			bridge.WithLogger(logger),
			bridge.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			bridge.WithNext(sink),
			bridge.WithMetrics(registry),
			bridge.WithClientName(appName),
		}
		if cfg.NATS.Source != "" {
			bridgeOpts = append(bridgeOpts, bridge.WithSource(cfg.NATS.Source))
		}

		eventBridge, err := bridge.New(cfg.NATS.URL, bridgeOpts...)
		if err != nil {
			return err
		}
		if err := eventBridge.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = eventBridge.Stop() }()
		events = eventBridge
	}

	p, err := buildPrinter(events, cfg, registry, logger)
	if err != nil {
		return err
	}

	return connectLoop(ctx, p, cfg, sink, logger)
}

func buildPrinter(
	events printer.EventSink,
	cfg *config.Config,
	registry *metric.Registry,
	logger *slog.Logger,
) (*printer.Printer, error) {
	clientOpts := []moonraker.Option{
		moonraker.WithPort(cfg.Printer.Port),
		moonraker.WithTimeout(cfg.Printer.Timeout),
		moonraker.WithMetrics(registry),
		moonraker.WithClientInfo(appName, Version),
	}
	if cfg.Printer.APIKey != "" {
		clientOpts = append(clientOpts, moonraker.WithAPIKey(cfg.Printer.APIKey))
	}
	if len(cfg.Printer.MonitoredRoots) > 0 {
		clientOpts = append(clientOpts, moonraker.WithMonitoredRoots(cfg.Printer.MonitoredRoots...))
	}

	printerOpts := []printer.Option{
		printer.WithLogger(logger),
		printer.WithCommandTimeout(cfg.Printer.Timeout),
	}
	for _, opt := range clientOpts {
		printerOpts = append(printerOpts, printer.ClientOption(opt))
	}

	return printer.New(events, cfg.Printer.Host, printerOpts...)
}

// connectLoop keeps the printer connection alive with exponential backoff,
// returning when the context is cancelled.
func connectLoop(
	ctx context.Context,
	p *printer.Printer,
	cfg *config.Config,
	sink *daemonSink,
	logger *slog.Logger,
) error {
	retry := backoff.New(cfg.Printer.ReconnectDelay, cfg.Printer.MaxReconnect)

	for {
		// drop any stale down signal from a previous session
		select {
		case <-sink.down:
		default:
		}

		if err := p.Connect(ctx); err != nil {
			logger.Warn("connection attempt failed", "host", cfg.Printer.Host, "error", err)
		} else {
			retry.Reset()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return p.Disconnect()
			case <-sink.down:
				if err := p.LastError(); err != nil {
					logger.Warn("connection lost", "error", err)
				} else {
					logger.Info("connection closed")
				}
			}
		}

		logger.Info("reconnecting")
		if err := retry.Sleep(ctx); err != nil {
			return nil
		}
	}
}
