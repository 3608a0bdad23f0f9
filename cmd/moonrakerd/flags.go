package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	Host        string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Flags fall back to environment variables so containerized deployments
	// can skip the config file entirely.
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("MOONRAKER_CONFIG", ""),
		"Path to configuration file (env: MOONRAKER_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("MOONRAKER_CONFIG", ""),
		"Path to configuration file (env: MOONRAKER_CONFIG)")

	flag.StringVar(&cfg.Host, "host",
		getEnv("MOONRAKER_HOST", ""),
		"Moonraker host, overrides the config file (env: MOONRAKER_HOST)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MOONRAKER_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: MOONRAKER_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MOONRAKER_LOG_FORMAT", ""),
		"Log format: text, json (env: MOONRAKER_LOG_FORMAT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Moonraker printer connector

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a local Klipper host
  %s --host=klipper.local

  # Run with a config file
  %s --config=/etc/moonrakerd/config.json

  # Run with environment variables
  export MOONRAKER_HOST=klipper.local
  export MOONRAKER_LOG_LEVEL=debug
  %s

  # Validate configuration only
  %s --config=/etc/moonrakerd/config.json --validate

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
