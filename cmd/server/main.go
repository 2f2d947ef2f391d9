package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/soltrack/service/bootstrap"
	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/metrics"
	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/server"
	"github.com/brojonat/soltrack/service/temporal"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load .env if present; real environment variables take precedence
	_ = godotenv.Load()

	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := bootstrap.Logger(cfg.LogLevel)
	logger.Info("starting soltrack server",
		"addr", cfg.ServerAddr,
		"default_source", cfg.DefaultSource,
		"sources", cfg.Sources(),
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Report builder: transaction sources plus the fiat rate provider
	builder, closeBuilder, err := bootstrap.Builder(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to initialize report builder", "error", err)
		os.Exit(1)
	}
	defer closeBuilder()

	// Snapshot history and watch records (optional)
	var store server.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		dbStore := db.NewStore(pool, metricsCollector)
		if err := dbStore.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		store = dbStore
		logger.Info("connected to database")
	} else {
		logger.Warn("DATABASE_URL not set, snapshot history disabled")
	}

	// SSE event source (optional)
	var subscriber natspkg.Subscriber
	if cfg.NATSURL != "" {
		natsSubscriber, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsSubscriber.Close()
		subscriber = natsSubscriber
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// Watch schedules (optional: the server still serves reports without Temporal)
	var scheduler temporal.Scheduler
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		cfg.SignatureLimit,
		logger,
	)
	if err != nil {
		logger.Warn("temporal unavailable, watch endpoints disabled", "error", err)
	} else {
		defer temporalClient.Close()
		scheduler = temporalClient
	}

	srv := server.New(cfg.ServerAddr, cfg, builder, store, scheduler, subscriber, metricsCollector, logger)
	if err := srv.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}

		logger.Info("server stopped gracefully")
	}
}
