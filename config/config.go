// Package config loads and validates groundlink client configuration
// from a YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/groundlink/errors"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig identifies the telemetry server and instance.
type ServerConfig struct {
	URL      string `yaml:"url"`
	Instance string `yaml:"instance"`
}

// RealtimeConfig tunes the subscription engine.
type RealtimeConfig struct {
	// BackoffSchedule overrides the fixed reconnect wait sequence.
	// Empty means the engine default (1s, 5s, 5s, 10s, 10s, 30s).
	BackoffSchedule []Duration `yaml:"backoff_schedule,omitempty"`
}

// CatalogConfig tunes the dictionary builder.
type CatalogConfig struct {
	// BuildTimeout bounds one catalog build attempt.
	BuildTimeout Duration `yaml:"build_timeout"`
}

// MetricsConfig controls the metrics/health HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the default logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse yaml")
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = "http://localhost:8090"
	}
	if c.Server.Instance == "" {
		c.Server.Instance = "simulator"
	}
	if c.Catalog.BuildTimeout == 0 {
		c.Catalog.BuildTimeout = Duration(2 * time.Minute)
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Environment variables recognized by applyEnvOverrides.
const (
	EnvServerURL   = "GROUNDLINK_SERVER_URL"
	EnvInstance    = "GROUNDLINK_INSTANCE"
	EnvLogLevel    = "GROUNDLINK_LOG_LEVEL"
	EnvMetricsPort = "GROUNDLINK_METRICS_PORT"
)

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv(EnvInstance); v != "" {
		c.Server.Instance = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvMetricsPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Metrics.Port = port
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: server url: %v", errors.ErrInvalidConfig, err),
			"config", "Validate", "parse server url")
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: server url scheme must be http or https, got %q", errors.ErrInvalidConfig, u.Scheme),
			"config", "Validate", "check server url scheme")
	}

	if c.Server.Instance == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: server instance", errors.ErrMissingConfig),
			"config", "Validate", "check instance")
	}

	for _, d := range c.Realtime.BackoffSchedule {
		if d <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: backoff schedule entries must be positive", errors.ErrInvalidConfig),
				"config", "Validate", "check backoff schedule")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidConfig, c.Logging.Level),
			"config", "Validate", "check log level")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown log format %q", errors.ErrInvalidConfig, c.Logging.Format),
			"config", "Validate", "check log format")
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metrics port %d out of range", errors.ErrInvalidConfig, c.Metrics.Port),
			"config", "Validate", "check metrics port")
	}

	return nil
}
