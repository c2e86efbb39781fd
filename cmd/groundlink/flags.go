package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/c360/groundlink/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	ServerURL       string
	Instance        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	Parameters      []string
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("GROUNDLINK_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: GROUNDLINK_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("GROUNDLINK_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: GROUNDLINK_CONFIG)")

	flag.StringVar(&cfg.ServerURL, "server",
		getEnv(config.EnvServerURL, ""),
		"Yamcs server URL, overrides config (env: "+config.EnvServerURL+")")

	flag.StringVar(&cfg.Instance, "instance",
		getEnv(config.EnvInstance, ""),
		"Yamcs instance name, overrides config (env: "+config.EnvInstance+")")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv(config.EnvLogLevel, ""),
		"Log level: debug, info, warn, error (env: "+config.EnvLogLevel+")")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("GROUNDLINK_LOG_FORMAT", ""),
		"Log format: json, text (env: GROUNDLINK_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		10*time.Second,
		"Graceful shutdown timeout")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	cfg.Parameters = flag.Args()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.LogLevel != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !contains(validLevels, cfg.LogLevel) {
			return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
		}
	}

	if cfg.LogFormat != "" {
		validFormats := []string{"json", "text"}
		if !contains(validFormats, cfg.LogFormat) {
			return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
		}
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Yamcs telemetry client

Usage: %s [options] [qualified-name ...]

Browses the telemetry dictionary of a Yamcs instance and streams realtime
samples for the given fully qualified parameter names. With no parameters,
prints the dictionary tree and exits.

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Print the dictionary of the default instance
  %s --server=http://localhost:8090 --instance=simulator

  # Stream two parameters until interrupted
  %s --server=http://localhost:8090 /YSS/SIMULATOR/BatteryVoltage1 /YSS/SIMULATOR/Alpha
`, os.Args[0], os.Args[0])
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
