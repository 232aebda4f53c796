// Package collector gathers documented entities from their sources: YAML
// manifests, annotated Go source trees and the Postgres entity registry.
// Sources run concurrently; their results are merged in source order.
package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/tracing"
)

// FromConfig builds the configured sources in merge order: manifests, then
// Go source trees, then the registry. db may be nil, which leaves the
// registry out even when it is enabled.
func FromConfig(cfg config.CollectorConfig, db *sql.DB) []Source {
	var sources []Source
	if len(cfg.Manifests) > 0 {
		sources = append(sources, ManifestSource{Paths: cfg.Manifests})
	}
	if len(cfg.GoRoots) > 0 {
		sources = append(sources, GoSource{Roots: cfg.GoRoots})
	}
	if cfg.Registry && db != nil {
		sources = append(sources, NewRegistrySource(db))
	}
	return sources
}

// Source yields documented entities. Collect must be safe to call again
// after a failure.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]docindex.Entity, error)
}

// Collect runs every source concurrently and concatenates their entities in
// the order the sources were given. When two sources document the same
// identity the earlier source wins and the later entity is dropped with a
// warning. Any source failure fails the whole collection.
func Collect(ctx context.Context, sources ...Source) ([]docindex.Entity, error) {
	logger := slog.Default().With("component", "doc-collector")
	results := make([][]docindex.Entity, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			sctx, span := tracing.Start(gctx, src.Name())
			entities, err := src.Collect(sctx)
			span.SetAttr("entities", len(entities))
			span.End()
			if err != nil {
				return fmt.Errorf("%w: %s: %w", apperrors.ErrSourceUnavailable, src.Name(), err)
			}
			results[i] = entities
			logger.Debug("source collected", "source", src.Name(), "entities", len(entities))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]docindex.Entity, 0, total)
	owner := make(map[string]string, total)
	for i, r := range results {
		name := sources[i].Name()
		local := make(map[string]bool, len(r))
		for _, e := range r {
			if prev, ok := owner[e.ID]; ok && !local[e.ID] {
				logger.Warn("duplicate entity dropped",
					"id", e.ID,
					"kept_from", prev,
					"dropped_from", name,
				)
				continue
			}
			owner[e.ID] = name
			local[e.ID] = true
			merged = append(merged, e)
		}
	}
	logger.Info("documentation collected", "sources", len(sources), "entities", len(merged))
	return merged, nil
}

// Static serves a fixed entity list. Useful for embedding and tests.
type Static struct {
	Label    string
	Entities []docindex.Entity
}

func (s Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s Static) Collect(context.Context) ([]docindex.Entity, error) {
	out := make([]docindex.Entity, len(s.Entities))
	copy(out, s.Entities)
	return out, nil
}
