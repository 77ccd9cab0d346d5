package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/promptlens/internal/collector"
	"github.com/haasonsaas/promptlens/internal/config"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/version"
)

// runServe loads configuration, opens the store, and runs the collector
// until a shutdown signal arrives.
func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyServeOverrides(cfg, opts)
	logger := newLogger(cfg)

	logger.Info(ctx, "starting PromptLens collector",
		"version", version.Version,
		"commit", commit,
		"config", resolveConfigPath(configPath),
		"debug", debug,
	)

	tracer, shutdownTracer := observability.NewTracer(cfg.Tracing)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	store, err := collector.OpenStore(cfg.Collector)
	if err != nil {
		return fmt.Errorf("failed to open metric store: %w", err)
	}
	server, err := collector.NewServer(collector.ServerConfig{
		Config:   cfg.Collector,
		Store:    store,
		Logger:   logger,
		Metrics:  observability.NewMetrics(prometheus.DefaultRegisterer),
		Tracer:   tracer,
		Gatherer: prometheus.DefaultGatherer,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to initialize collector: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh, err := server.Start(ctx)
	if err != nil {
		_ = store.Close()
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received, initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			_ = server.Stop(context.Background())
			return fmt.Errorf("collector failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info(shutdownCtx, "PromptLens collector stopped gracefully")
	return nil
}

func applyServeOverrides(cfg *config.Config, opts serveOptions) {
	if opts.listenSet && strings.TrimSpace(opts.listen) != "" {
		cfg.Collector.Listen = opts.listen
	}
	if d := strings.ToLower(strings.TrimSpace(opts.driver)); d != "" && d != cfg.Collector.Store.Driver {
		// The configured DSN belongs to the old driver.
		cfg.Collector.Store.Driver = d
		cfg.Collector.Store.DSN = ""
	}
	if strings.TrimSpace(opts.dsn) != "" {
		cfg.Collector.Store.DSN = opts.dsn
	}
	if opts.retentionSet {
		cfg.Collector.Retention = opts.retention
	}
	if len(opts.authKeys) > 0 {
		cfg.Collector.AuthKeys = opts.authKeys
	}
	cfg.Collector = cfg.Collector.WithDefaults()
}
