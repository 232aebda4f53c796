// Command docsearch-mcp answers documentation queries for MCP clients over
// stdio. It loads the same sources as the HTTP service and keeps them fresh
// on the configured refresh interval.
//
// Usage:
//
//	go run ./cmd/docsearch-mcp [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/collector"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/mcp"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/logger"
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

	// stdout is the protocol channel.
	logger.SetupTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.Collector.Registry {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("entity registry unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg.DB
	}

	idx := docindex.New()
	refresher := refresh.New(idx, cfg.Refresh, collector.FromConfig(cfg.Collector, db)...)
	if err := refresher.EnsureLoaded(ctx); err != nil {
		slog.Error("initial documentation load failed", "error", err)
		os.Exit(1)
	}
	go refresher.Start(ctx)

	engine := docsearch.NewEngine(docsearch.Options{FuzzyThreshold: cfg.Search.FuzzyThreshold})
	srv := mcp.NewServer(idx, engine, cfg.MCP, cfg.Search)

	st := idx.Stats()
	slog.Info("mcp server ready", "name", cfg.MCP.Name, "version", st.Version, "entities", st.Entities)
	if err := srv.Serve(ctx); err != nil {
		slog.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
