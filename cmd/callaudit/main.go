package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MikeSquared-Agency/CallAudit/internal/api"
	"github.com/MikeSquared-Agency/CallAudit/internal/config"
	"github.com/MikeSquared-Agency/CallAudit/internal/evaluation"
	"github.com/MikeSquared-Agency/CallAudit/internal/hermes"
	"github.com/MikeSquared-Agency/CallAudit/internal/metrics"
	"github.com/MikeSquared-Agency/CallAudit/internal/overrides"
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/scheduler"
	"github.com/MikeSquared-Agency/CallAudit/internal/selection"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rubric catalog
	catalog, err := rubric.Load()
	if err != nil {
		logger.Error("invalid rubric catalog", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("connected to database")

	// Hermes (optional)
	var hermesClient hermes.Client
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	selector := selection.New(db, policyFrom(cfg.Selection), m, logger)
	evaluator := evaluation.NewService(db, catalog, overrides.NewEngineFromCatalog(catalog), hermesClient, m, logger)

	// Scheduler
	sched := scheduler.New(selector, hermesClient, cfg, logger)
	if last, err := db.LatestSelectedDay(ctx); err != nil {
		logger.Warn("could not read last selected day, catch-up starts from yesterday", "error", err)
	} else if !last.IsZero() {
		sched.SetLastCovered(last)
	}
	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
		defer sched.Stop()
		logger.Info("scheduler started",
			"run_hour_utc", cfg.Scheduler.RunHourUTC,
			"check_interval", cfg.CheckInterval(),
			"last_covered", sched.LastCovered(),
		)
	}

	// Collaborator events
	ingest := scheduler.NewIngest(hermesClient, db, evaluator, logger)
	if err := ingest.SetupSubscriptions(ctx); err != nil {
		logger.Warn("failed to subscribe to collaborator events", "error", err)
	}

	// API server
	router := api.NewRouter(db, sched, evaluator, catalog, cfg.Server, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(registry),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func policyFrom(c config.SelectionConfig) selection.Policy {
	return selection.Policy{
		ExemptClient:       c.ExemptClient,
		ExemptProjectIDs:   c.ExemptProjectIDs,
		UnknownAgentID:     c.UnknownAgentID,
		MinDurationSeconds: c.MinDurationSeconds,
		MinFileSizeBytes:   c.MinFileSizeBytes,
		InsertConcurrency:  c.InsertConcurrency,
	}
}
