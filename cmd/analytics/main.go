// Command analytics starts the standalone analytics aggregation service.
//
// It consumes documentation search and refresh events from Kafka, aggregates
// them in memory (searches, latency percentiles, cache hit rate, top and
// zero-result queries, refresh outcomes) and exposes them at
// GET /api/v1/analytics. With Postgres reachable it restores the latest
// snapshot on start and saves a new one every minute.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics will not persist", "error", err)
	} else {
		defer pg.Close()
		checker.Register("postgres", health.PingCheck(pg.Ping, true))
		store := aggregator.NewStore(pg, "analytics", aggregator.DefaultRetain)
		if _, err := store.Restore(ctx, agg); err != nil {
			slog.Warn("analytics snapshots unavailable", "error", err)
		} else {
			store.StartPeriodicSave(ctx, agg, time.Minute)
		}
	}

	// One group shared by every instance of this service; it sees the whole
	// stream independently of the search replicas' groups.
	kcfg := cfg.Kafka
	kcfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-analytics"
	consumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.AnalyticsEvents, agg.HandleMessage)
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents, "group", kcfg.ConsumerGroup)

	analyticsHandler := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
