// Package aggregator snapshots documentation search analytics to
// PostgreSQL so totals survive restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/postgres"
)

// DefaultRetain is how many snapshots each writer keeps.
const DefaultRetain = 1440

const schema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	writer      TEXT NOT NULL,
	data        JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_writer_id
	ON analytics_snapshots (writer, id DESC)`

// Store keeps a rolling history of aggregated stats per writer. The search
// service and the standalone aggregator use different writers, so neither
// restores the other's totals.
type Store struct {
	db     *postgres.Client
	writer string
	retain int
	logger *slog.Logger

	mu   sync.Mutex
	last watermark
}

// watermark identifies stats that have already been persisted.
type watermark struct {
	searches  int64
	refreshes int64
	version   uint64
}

func markOf(stats analytics.AggregatedStats) watermark {
	return watermark{
		searches:  stats.TotalSearches,
		refreshes: stats.Refreshes + stats.FailedRefreshes,
		version:   stats.IndexVersion,
	}
}

// NewStore returns a store writing under writer. retain <= 0 means
// DefaultRetain.
func NewStore(db *postgres.Client, writer string, retain int) *Store {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Store{
		db:     db,
		writer: writer,
		retain: retain,
		logger: slog.Default().With("component", "analytics-store", "writer", writer),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analytics_snapshots: %w", err)
	}
	return nil
}

// SaveSnapshot inserts stats unless nothing changed since the last save, then
// prunes this writer's history down to the retention limit. It reports
// whether a row was written.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) (bool, error) {
	mark := markOf(stats)
	s.mu.Lock()
	unchanged := mark == s.last
	s.mu.Unlock()
	if unchanged {
		return false, nil
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("marshaling stats: %w", err)
	}

	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (writer, data, captured_at) VALUES ($1, $2, $3)`,
		s.writer, data, time.Now().UTC(),
	); err != nil {
		return false, fmt.Errorf("saving analytics snapshot: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM analytics_snapshots
		 WHERE writer = $1 AND id < (
		     SELECT MIN(id) FROM (
		         SELECT id FROM analytics_snapshots WHERE writer = $1 ORDER BY id DESC LIMIT $2
		     ) AS kept
		 )`,
		s.writer, s.retain,
	)
	if err != nil {
		return false, fmt.Errorf("pruning analytics snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing analytics snapshot: %w", err)
	}

	s.mu.Lock()
	s.last = mark
	s.mu.Unlock()

	pruned, _ := res.RowsAffected()
	s.logger.Debug("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"index_version", stats.IndexVersion,
		"pruned", pruned,
	)
	return true, nil
}

// LatestSnapshot returns this writer's newest snapshot, or nil when there is
// none yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots WHERE writer = $1 ORDER BY id DESC LIMIT 1`,
		s.writer,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", s.writer, err)
	}
	s.mu.Lock()
	s.last = markOf(stats)
	s.mu.Unlock()
	return &stats, nil
}

// Restore loads the newest snapshot into agg. It reports whether one existed.
func (s *Store) Restore(ctx context.Context, agg *analytics.Aggregator) (bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, err
	}
	stats, err := s.LatestSnapshot(ctx)
	if err != nil || stats == nil {
		return false, err
	}
	agg.Restore(*stats)
	s.logger.Info("analytics restored", "total_searches", stats.TotalSearches, "captured_version", stats.IndexVersion)
	return true, nil
}

// StartPeriodicSave snapshots agg every interval until ctx is done, then
// writes one last snapshot on a fresh context.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := s.SaveSnapshot(final, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
}
