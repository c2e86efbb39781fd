// Package main implements the groundlink command line client. It browses
// the telemetry dictionary of a Yamcs instance and streams realtime
// parameter samples to stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/c360/groundlink"
	"github.com/c360/groundlink/catalog"
	"github.com/c360/groundlink/config"
	"github.com/c360/groundlink/identifier"
	"github.com/c360/groundlink/realtime"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "groundlink"
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
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting groundlink",
		"version", Version,
		"server", cfg.Server.URL,
		"instance", cfg.Server.Instance)

	client, err := groundlink.New(cfg, groundlink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if len(cliCfg.Parameters) == 0 {
		return printDictionary(context.Background(), client)
	}
	return streamParameters(client, cliCfg)
}

// loadConfig loads the file at the CLI config path, or defaults when no
// path is given, and applies flag overrides on top.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	if cliCfg.ConfigPath != "" {
		loaded, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cliCfg.ServerURL != "" {
		cfg.Server.URL = cliCfg.ServerURL
	}
	if cliCfg.Instance != "" {
		cfg.Server.Instance = cliCfg.Instance
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// printDictionary fetches the telemetry dictionary and prints it as an
// indented tree.
func printDictionary(ctx context.Context, client *groundlink.Client) error {
	root, err := client.Node(ctx, client.RootKey())
	if err != nil {
		return fmt.Errorf("build dictionary: %w", err)
	}
	return printNode(ctx, client, root, 0)
}

func printNode(ctx context.Context, client *groundlink.Client, node *catalog.Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s  [%s]\n", indent, node.Name, node.Kind)

	children, err := client.Children(ctx, node.Key)
	if err != nil {
		return fmt.Errorf("list children of %s: %w", node.Key, err)
	}
	for _, child := range children {
		if err := printNode(ctx, client, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// streamParameters subscribes to the given fully qualified names and prints
// decoded samples until interrupted.
func streamParameters(client *groundlink.Client, cliCfg *CLIConfig) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := client.Start(signalCtx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	for _, qualifiedName := range cliCfg.Parameters {
		key := identifier.ToKey(qualifiedName)
		unsub, err := client.Subscribe(key, printSample)
		if err != nil {
			_ = client.Stop(cliCfg.ShutdownTimeout)
			return fmt.Errorf("subscribe %s: %w", qualifiedName, err)
		}
		defer unsub()
	}

	slog.Info("Streaming parameters", "count", len(cliCfg.Parameters))

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := client.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("stop client: %w", err)
	}
	return nil
}

func printSample(s realtime.Sample) {
	line := fmt.Sprintf("%s  %s  %v", s.Timestamp.Format("15:04:05.000"), s.Key, s.Value)
	if s.MonitoringResult != "" {
		line += "  " + s.MonitoringResult
	}
	fmt.Println(line)
}
