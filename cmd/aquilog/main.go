// Package main implements the entry point for the aquilog service: the
// logging and retrieval pipeline behind the conversational agent. Records
// are fanned out across a set of independent stores and reassembled on read;
// the service stays up and answering even when every backend is down.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/quilross/aquil-symbolic-engine-sub003/aggregate"
	"github.com/quilross/aquil-symbolic-engine-sub003/config"
	"github.com/quilross/aquil-symbolic-engine-sub003/fanout"
	"github.com/quilross/aquil-symbolic-engine-sub003/health"
	"github.com/quilross/aquil-symbolic-engine-sub003/metric"
	"github.com/quilross/aquil-symbolic-engine-sub003/natsclient"
	"github.com/quilross/aquil-symbolic-engine-sub003/redact"
	"github.com/quilross/aquil-symbolic-engine-sub003/registry"
	"github.com/quilross/aquil-symbolic-engine-sub003/server"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
	"github.com/quilross/aquil-symbolic-engine-sub003/store/blob"
	kvstore "github.com/quilross/aquil-symbolic-engine-sub003/store/kv"
	"github.com/quilross/aquil-symbolic-engine-sub003/store/relational"
	"github.com/quilross/aquil-symbolic-engine-sub003/store/vector"
	"github.com/quilross/aquil-symbolic-engine-sub003/validate"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "aquilog"
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
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cliCfg.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	ctx := context.Background()
	metricsRegistry := metric.NewRegistry()

	natsClient := connectNATS(cfg, logger)
	if natsClient != nil {
		defer natsClient.Close()
	}

	adapters, blobAdapter, cleanup := buildAdapters(ctx, cfg, natsClient, logger)
	defer cleanup()

	pipeline, err := buildPipeline(cfg, adapters, blobAdapter, metricsRegistry.Metrics, logger)
	if err != nil {
		return err
	}

	srv := server.New(pipeline, health.New(adapters, Version),
		server.WithAddr(cfg.Server.Addr),
		server.WithLogger(logger),
		server.WithMetrics(metricsRegistry.Metrics),
		server.WithMetricsHandler(metricsRegistry.Handler()),
		server.WithWriteRateLimit(cfg.Server.WriteRatePerSec, cfg.Server.WriteBurst),
	)

	return runWithSignalHandling(srv, cliCfg, logger)
}

// connectNATS dials JetStream when any NATS-backed store is enabled. A
// failed connection is logged, not fatal: those adapters come up
// unavailable and the pipeline degrades.
func connectNATS(cfg *config.Config, logger *slog.Logger) *natsclient.Client {
	needed := cfg.StoreEnabled(store.NameKV) ||
		cfg.StoreEnabled(store.NameBlob) ||
		cfg.StoreEnabled(store.NameVector)
	if !needed {
		return nil
	}

	client := natsclient.New(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
	)
	if err := client.Connect(); err != nil {
		logger.Warn("nats unavailable, dependent stores will report missing",
			"url", cfg.NATS.URL, "error", err)
	}
	return client
}

// buildAdapters binds the enabled store adapters. Binding failures degrade
// the deployment rather than abort it.
func buildAdapters(
	ctx context.Context,
	cfg *config.Config,
	natsClient *natsclient.Client,
	logger *slog.Logger,
) (adapters []store.Adapter, blobAdapter *blob.Adapter, cleanup func()) {
	cleanup = func() {}

	if cfg.StoreEnabled(store.NameKV) {
		adapters = append(adapters, kvstore.New(ctx, natsClient, cfg.NATS.KVBucket, logger))
	}

	if cfg.StoreEnabled(store.NameRelational) {
		rel, err := relational.Open(cfg.Relational.Path, logger)
		if err != nil {
			logger.Warn("relational store unavailable",
				"path", cfg.Relational.Path, "error", err)
			adapters = append(adapters, relational.Unavailable())
		} else {
			adapters = append(adapters, rel)
			cleanup = func() { _ = rel.Close() }
		}
	}

	if cfg.StoreEnabled(store.NameBlob) {
		blobAdapter = blob.New(ctx, natsClient, cfg.Blob.Bucket, logger)
		adapters = append(adapters, blobAdapter)
	}

	if cfg.StoreEnabled(store.NameVector) {
		var embedder vector.Embedder
		if key := cfg.Vector.APIKey(); key != "" {
			embedder = vector.NewOpenAIEmbedder(key, cfg.Vector.Model, cfg.Vector.Dimensions)
		} else {
			logger.Info("no embedding provider key, using deterministic hash embedder")
			embedder = vector.NewHashEmbedder(cfg.Vector.Dimensions)
		}
		adapters = append(adapters, vector.New(ctx, natsClient, cfg.Vector.Bucket, embedder, logger))
	}

	return adapters, blobAdapter, cleanup
}

func buildPipeline(
	cfg *config.Config,
	adapters []store.Adapter,
	blobAdapter *blob.Adapter,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*server.Pipeline, error) {
	reg, err := registry.New(cfg.Registry.Canonical, cfg.Registry.Aliases)
	if err != nil {
		return nil, fmt.Errorf("build operation registry: %w", err)
	}

	patterns := cfg.Redact.Patterns
	if len(patterns) == 0 {
		patterns = redact.DefaultPatterns
	}
	redactor, err := redact.New(patterns, cfg.Redact.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("compile redaction patterns: %w", err)
	}

	validator := validate.New(validate.Config{
		Kinds:          cfg.Validation.Kinds,
		StoreNames:     cfg.Validation.StoreNames,
		MaxDetailBytes: cfg.Validation.MaxDetailBytes,
	})

	writer := fanout.New(adapters,
		fanout.WithTimeout(cfg.Stores.AdapterTimeout.Std()),
		fanout.WithInlineThreshold(cfg.Blob.InlineThreshold),
		fanout.WithLogger(logger),
		fanout.WithMetrics(metrics),
	)

	aggOpts := []aggregate.Option{
		aggregate.WithTimeout(cfg.Stores.AdapterTimeout.Std()),
		aggregate.WithLogger(logger),
		aggregate.WithMetrics(metrics),
	}
	if blobAdapter != nil {
		aggOpts = append(aggOpts, aggregate.WithBlobFetcher(blobAdapter))
	}
	aggregator := aggregate.New(adapters, aggregate.NewMetaTracker(), aggOpts...)

	return server.NewPipeline(reg, redactor, validator, writer, aggregator,
		server.WithPipelineLogger(logger),
		server.WithPipelineMetrics(metrics),
	), nil
}

func runWithSignalHandling(srv *server.Server, cliCfg *CLIConfig, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
