// Command docsearch serves the documentation search API.
//
// It collects documented entities from YAML manifests, Go source trees and
// (optionally) the Postgres entity registry, loads them into the in-memory
// index and answers ranked queries over HTTP. Redis caches result pages,
// Kafka carries refresh triggers between replicas and analytics events to
// the aggregator, and Postgres keeps analytics snapshots across restarts.
//
// Usage:
//
//	go run ./cmd/docsearch [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/collector"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/redis"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting docsearch service",
		"port", cfg.Server.Port,
		"manifests", cfg.Collector.Manifests,
		"go_roots", cfg.Collector.GoRoots,
		"registry", cfg.Collector.Registry,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		metrics.StartServer(ctx, cfg.Metrics.Port, prometheus.DefaultGatherer)
	}

	checker := health.NewChecker()

	var pg *postgres.Client
	if cfg.Collector.Registry {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("entity registry unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		checker.Register("postgres", health.PingCheck(pg.Ping, false))
		slog.Info("entity registry connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	idx := docindex.New()
	engine := docsearch.NewEngine(docsearch.Options{FuzzyThreshold: cfg.Search.FuzzyThreshold})
	refresher := refresh.New(idx, cfg.Refresh, collector.FromConfig(cfg.Collector, registryDB(pg))...)
	if m != nil {
		refresher.SetMetrics(m)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			refresher.SetCache(queryCache)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	agg := analytics.NewAggregator()
	if pg != nil {
		store := aggregator.NewStore(pg, "docsearch", aggregator.DefaultRetain)
		if _, err := store.Restore(ctx, agg); err != nil {
			slog.Warn("analytics snapshots unavailable", "error", err)
		} else {
			store.StartPeriodicSave(ctx, agg, snapshotInterval)
		}
	}

	var publisher analytics.Publisher = analytics.LocalPublisher{Aggregator: agg}
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, true)
		defer analyticsProducer.Close()
		publisher = analyticsProducer

		// Each replica consumes both topics in its own group: every replica
		// must refresh, and every replica reports cluster-wide analytics.
		analyticsCfg := cfg.Kafka
		analyticsCfg.ConsumerGroup = kafka.ReplicaGroup(cfg.Kafka.ConsumerGroup, "analytics")
		analyticsConsumer := kafka.NewConsumer(analyticsCfg, cfg.Kafka.Topics.AnalyticsEvents, agg.HandleMessage)
		defer analyticsConsumer.Close()
		go runConsumer(ctx, "analytics", analyticsConsumer)

		refreshProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocsRefresh, false)
		defer refreshProducer.Close()
		refresher.SetBroadcaster(refreshProducer)

		refreshCfg := cfg.Kafka
		refreshCfg.ConsumerGroup = kafka.ReplicaGroup(cfg.Kafka.ConsumerGroup, "refresh")
		refreshConsumer := kafka.NewConsumer(refreshCfg, cfg.Kafka.Topics.DocsRefresh, refresher.HandleMessage)
		defer refreshConsumer.Close()
		go runConsumer(ctx, "refresh", refreshConsumer)

		slog.Info("kafka wiring enabled",
			"brokers", cfg.Kafka.Brokers,
			"refresh_topic", cfg.Kafka.Topics.DocsRefresh,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	events := analytics.NewCollector(publisher, 10000, 100, 2*time.Second)
	events.Start(ctx)
	defer events.Close()
	refresher.SetEvents(events)

	if err := refresher.EnsureLoaded(ctx); err != nil {
		// Serve anyway: readiness stays down until a later refresh succeeds.
		slog.Error("initial documentation load failed", "error", err)
	}
	go refresher.Start(ctx)

	checker.Register("doc_index", func(ctx context.Context) health.ComponentHealth {
		if !idx.Loaded() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "documentation not loaded"}
		}
		st := idx.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %d, %d entities", st.Version, st.Entities),
		}
	})

	h := handler.New(handler.Deps{
		Index:     idx,
		Engine:    engine,
		Cache:     queryCache,
		Refresher: refresher,
		Events:    events,
		Metrics:   m,
	}, cfg.Search)
	analyticsH := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.Server.MutationsPerMinute > 0 {
		trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			slog.Error("invalid trusted proxies", "error", err)
			os.Exit(1)
		}
		limiter := middleware.NewLimiter(ctx, cfg.Server.MutationsPerMinute, time.Minute)
		chain = middleware.RateLimit(limiter, func(r *http.Request) bool {
			return r.Method == http.MethodPost
		}, middleware.ClientKey(trusted))(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	}
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

	slog.Info("docsearch service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("docsearch service stopped")
}

func runConsumer(ctx context.Context, name string, c *kafka.Consumer) {
	if err := c.Start(ctx); err != nil {
		slog.Error("kafka consumer stopped", "consumer", name, "error", err)
	}
}

func registryDB(pg *postgres.Client) *sql.DB {
	if pg == nil {
		return nil
	}
	return pg.DB
}
