package groundlink

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/groundlink/catalog"
	"github.com/c360/groundlink/config"
	"github.com/c360/groundlink/errors"
	"github.com/c360/groundlink/health"
	"github.com/c360/groundlink/metric"
	"github.com/c360/groundlink/realtime"
)

// Client is the host-facing surface of GroundLink. It owns the catalog
// builder, the realtime engine, and the shared metric registry, and wires
// them together from a single Config.
type Client struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.Registry

	catalog *catalog.Builder
	engine  *realtime.Engine
	metrics *metric.Server

	started atomic.Bool
	stopped atomic.Bool
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
	source catalog.Source
}

// WithLogger sets the logger shared by the catalog builder and the realtime
// engine. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithCatalogSource overrides the mission database source. Primarily for
// tests; the default fetches from the configured server over HTTP.
func WithCatalogSource(source catalog.Source) Option {
	return func(o *clientOptions) {
		o.source = source
	}
}

// New builds a Client from cfg. The catalog is not fetched and no websocket
// is dialed until Start.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "groundlink", "New", "validate config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "groundlink", "New", "validate config")
	}

	options := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	registry := metric.NewRegistry()

	source := options.source
	if source == nil {
		source = catalog.NewMDBSource(cfg.Server.URL, cfg.Server.Instance)
	}
	builder := catalog.NewBuilder(source, cfg.Server.Instance,
		catalog.WithLogger(options.logger),
		catalog.WithMetrics(registry),
		catalog.WithBuildTimeout(cfg.Catalog.BuildTimeout.Std()),
	)

	transport, err := realtime.NewWebsocketTransport(cfg.Server.URL, cfg.Server.Instance)
	if err != nil {
		return nil, errors.WrapInvalid(err, "groundlink", "New", "build websocket transport")
	}

	engineOpts := []realtime.Option{
		realtime.WithLogger(options.logger),
		realtime.WithMetrics(registry),
	}
	if len(cfg.Realtime.BackoffSchedule) > 0 {
		schedule := make([]time.Duration, len(cfg.Realtime.BackoffSchedule))
		for i, d := range cfg.Realtime.BackoffSchedule {
			schedule[i] = d.Std()
		}
		engineOpts = append(engineOpts, realtime.WithBackoffSchedule(schedule))
	}
	engine := realtime.New(transport, engineOpts...)

	client := &Client{
		cfg:      cfg,
		logger:   options.logger,
		registry: registry,
		catalog:  builder,
		engine:   engine,
	}
	if cfg.Metrics.Enabled {
		client.metrics = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, engine)
	}
	return client, nil
}

// Start connects the realtime engine and, when enabled, serves metrics and
// health endpoints. ctx bounds the lifetime of the engine's connection
// management.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "groundlink", "Start", "start client")
	}
	if err := c.engine.Start(ctx); err != nil {
		return errors.Wrap(err, "groundlink", "Start", "start realtime engine")
	}
	if c.metrics != nil {
		if err := c.metrics.Start(); err != nil {
			return errors.Wrap(err, "groundlink", "Start", "start metrics server")
		}
	}
	c.logger.Info("groundlink client started",
		"server", c.cfg.Server.URL,
		"instance", c.cfg.Server.Instance)
	return nil
}

// Stop shuts down the realtime engine and the metrics server. timeout bounds
// how long Stop waits for the engine's event loop to drain.
func (c *Client) Stop(timeout time.Duration) error {
	if !c.started.Load() {
		return errors.WrapInvalid(errors.ErrNotStarted, "groundlink", "Stop", "stop client")
	}
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if err := c.engine.Stop(timeout); err != nil {
		firstErr = errors.Wrap(err, "groundlink", "Stop", "stop realtime engine")
	}
	if c.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.metrics.Stop(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "groundlink", "Stop", "stop metrics server")
		}
	}
	c.logger.Info("groundlink client stopped")
	return firstErr
}

// RootKey returns the key of the dictionary root node.
func (c *Client) RootKey() string {
	return c.catalog.RootKey()
}

// Node returns the dictionary node for key, building the dictionary on first
// use. Returns (nil, nil) when the key is not in the dictionary.
func (c *Client) Node(ctx context.Context, key string) (*catalog.Node, error) {
	return c.catalog.Node(ctx, key)
}

// Children returns the nodes composed under the node at key, in dictionary
// order.
func (c *Client) Children(ctx context.Context, key string) ([]*catalog.Node, error) {
	return c.catalog.Children(ctx, key)
}

// Subscribe registers callback for realtime samples of the telemetry point
// at key. The subscription survives reconnects until the returned
// Unsubscribe is called.
func (c *Client) Subscribe(key string, callback realtime.Callback) (realtime.Unsubscribe, error) {
	return c.engine.Subscribe(key, callback)
}

// ConnectionState reports the realtime engine's connection state.
func (c *Client) ConnectionState() realtime.State {
	return c.engine.State()
}

// Health reports the client's health, derived from the realtime engine.
func (c *Client) Health() health.Status {
	return c.engine.Health()
}

// Registry exposes the client's metric registry so hosts can register their
// own collectors alongside GroundLink's.
func (c *Client) Registry() *metric.Registry {
	return c.registry
}
