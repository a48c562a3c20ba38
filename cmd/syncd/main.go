package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reachbox/reachbox/internal/config"
	"github.com/reachbox/reachbox/internal/database"
	"github.com/reachbox/reachbox/internal/mailbox"
	"github.com/reachbox/reachbox/internal/metrics"
	"github.com/reachbox/reachbox/internal/scheduler"
	"github.com/reachbox/reachbox/internal/syncer"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting email sync service")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Observability sink: always log per-run events; export Prometheus
	// metrics when an exporter address is configured
	reporters := metrics.Multi{metrics.NewLogReporter(logger)}
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		reporters = append(reporters, metrics.NewPromReporter(registry))
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr, registry, logger); err != nil {
				logger.Error("metrics exporter stopped", "error", err)
			}
		}()
	}

	// Build the pipeline
	connector := mailbox.NewConnector(mailbox.Config{
		DialTimeout:    cfg.IMAPDialTimeout,
		AuthTimeout:    cfg.IMAPAuthTimeout,
		CommandTimeout: cfg.IMAPCommandTimeout,
	}, logger)

	orchestrator := syncer.NewOrchestrator(db, connector, reporters, syncer.Config{
		LookbackWindow:  cfg.LookbackWindow,
		FetchBatchLimit: cfg.FetchBatchLimit,
	}, logger)

	sched := scheduler.New(db, orchestrator, scheduler.Config{
		Interval:    cfg.SyncInterval,
		SyncTimeout: cfg.SyncTimeout,
	}, logger)

	sched.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig)
	sched.Stop()
	logger.Info("sync service stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
