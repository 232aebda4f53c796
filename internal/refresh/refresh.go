// Package refresh rebuilds the documentation index from its sources. A
// refresh collects every source under a timeout with retries, loads the
// result as one new snapshot and then clears the query cache. At most one
// refresh runs at a time; overlapping requests fail fast with
// ErrRefreshInProgress.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/collector"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/tracing"
)

// Invalidator clears cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// EventSink receives refresh events for analytics.
type EventSink interface {
	Track(event any)
}

// Broadcaster publishes refresh triggers to other replicas.
type Broadcaster interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Trigger is the payload of a refresh request on the refresh topic.
type Trigger struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Result summarises a successful refresh.
type Result struct {
	Trigger  string        `json:"trigger"`
	Version  uint64        `json:"version"`
	Entities int           `json:"entities"`
	Members  int           `json:"members"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// Status reports the refresher's most recent activity.
type Status struct {
	Running     bool      `json:"running"`
	Last        *Result   `json:"last,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
}

type Refresher struct {
	index   *docindex.Index
	sources []collector.Source
	cfg     config.RefreshConfig
	running atomic.Bool

	cache       Invalidator
	events      EventSink
	metrics     *metrics.Metrics
	broadcaster Broadcaster

	mu          sync.Mutex
	last        *Result
	lastErr     error
	lastAttempt time.Time

	logger *slog.Logger
}

func New(idx *docindex.Index, cfg config.RefreshConfig, sources ...collector.Source) *Refresher {
	return &Refresher{
		index:   idx,
		sources: sources,
		cfg:     cfg,
		logger:  slog.Default().With("component", "doc-refresh"),
	}
}

func (r *Refresher) SetCache(c Invalidator)        { r.cache = c }
func (r *Refresher) SetEvents(e EventSink)         { r.events = e }
func (r *Refresher) SetMetrics(m *metrics.Metrics) { r.metrics = m }
func (r *Refresher) SetBroadcaster(b Broadcaster)  { r.broadcaster = b }

// Refresh collects and loads documentation now. trigger names what asked
// for it and is recorded in logs and events. On any failure the current
// snapshot stays in place.
func (r *Refresher) Refresh(ctx context.Context, trigger string) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, apperrors.ErrRefreshInProgress
	}
	defer r.running.Store(false)

	start := time.Now()
	res, err := r.refresh(ctx, trigger)
	res.Duration = time.Since(start)

	r.mu.Lock()
	r.lastAttempt = start
	r.lastErr = err
	if err == nil {
		last := res
		r.last = &last
	}
	r.mu.Unlock()

	r.record(res, err)
	return res, err
}

func (r *Refresher) refresh(ctx context.Context, trigger string) (Result, error) {
	res := Result{Trigger: trigger, At: time.Now().UTC()}

	ctx, span := tracing.Start(ctx, "doc-refresh")
	span.SetAttr("trigger", trigger)
	defer func() {
		span.End()
		span.Log(r.logger)
	}()

	collectCtx, collectSpan := tracing.Start(ctx, "collect")
	var entities []docindex.Entity
	err := resilience.WithTimeout(collectCtx, r.cfg.Timeout, "doc-refresh", func(ctx context.Context) error {
		collected, err := resilience.Do(ctx, "collect-docs", resilience.RetryConfig{MaxAttempts: r.cfg.RetryAttempts},
			func(ctx context.Context) ([]docindex.Entity, error) {
				return collector.Collect(ctx, r.sources...)
			})
		entities = collected
		return err
	})
	collectSpan.End()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		return res, fmt.Errorf("collecting documentation: %w", err)
	}

	_, loadSpan := tracing.Start(ctx, "load")
	err = r.index.Load(entities)
	loadSpan.End()
	if err != nil {
		return res, err
	}
	stats := r.index.Stats()
	res.Version = stats.Version
	res.Entities = stats.Entities
	res.Members = stats.Members

	if r.cache != nil {
		_, invSpan := tracing.Start(ctx, "invalidate")
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after refresh failed", "error", err)
		}
		invSpan.End()
	}
	return res, nil
}

func (r *Refresher) record(res Result, err error) {
	status := "success"
	if errors.Is(err, apperrors.ErrTimeout) {
		status = "timeout"
	} else if err != nil {
		status = "error"
	}

	if err != nil {
		r.logger.Error("documentation refresh failed", "trigger", res.Trigger, "duration", res.Duration, "error", err)
	} else {
		r.logger.Info("documentation refreshed",
			"trigger", res.Trigger,
			"version", res.Version,
			"entities", res.Entities,
			"members", res.Members,
			"duration", res.Duration,
		)
	}

	if r.metrics != nil {
		r.metrics.RefreshesTotal.WithLabelValues(status).Inc()
		r.metrics.RefreshDuration.Observe(res.Duration.Seconds())
		if err == nil {
			r.metrics.IndexedEntities.Set(float64(res.Entities))
			r.metrics.IndexedMembers.Set(float64(res.Members))
		}
	}

	if r.events != nil {
		event := analytics.RefreshEvent{
			Type:      analytics.EventRefresh,
			Trigger:   res.Trigger,
			Success:   err == nil,
			Version:   res.Version,
			Entities:  res.Entities,
			Members:   res.Members,
			LatencyMs: res.Duration.Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			event.Error = err.Error()
		}
		r.events.Track(event)
	}
}

func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{Running: r.running.Load(), LastAttempt: r.lastAttempt}
	if r.last != nil {
		last := *r.last
		s.Last = &last
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

// EnsureLoaded refreshes once if the index has never been loaded. If a
// refresh is already running it waits for that one instead.
func (r *Refresher) EnsureLoaded(ctx context.Context) error {
	if r.index.Loaded() {
		return nil
	}
	_, err := r.Refresh(ctx, "startup")
	if !errors.Is(err, apperrors.ErrRefreshInProgress) {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for r.running.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if !r.index.Loaded() {
		return apperrors.ErrIndexNotReady
	}
	return nil
}

// Start refreshes every configured interval until ctx is cancelled. It
// returns immediately when no interval is configured.
func (r *Refresher) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		r.logger.Info("periodic refresh disabled")
		return
	}
	r.logger.Info("periodic refresh started", "interval", r.cfg.Interval)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("periodic refresh stopped")
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx, "interval"); errors.Is(err, apperrors.ErrRefreshInProgress) {
				r.logger.Debug("periodic refresh skipped, one is already running")
			}
		}
	}
}

// HandleMessage is a kafka.MessageHandler for the refresh topic. A message
// arriving while a refresh is running is absorbed by that refresh.
func (r *Refresher) HandleMessage(ctx context.Context, _ []byte, value []byte) error {
	reason := "kafka"
	if len(value) > 0 {
		t, err := kafka.DecodeJSON[Trigger](value)
		if err != nil {
			r.logger.Warn("ignoring malformed refresh trigger", "error", err)
			return nil
		}
		if t.Reason != "" {
			reason = "kafka:" + t.Reason
		}
	}
	_, err := r.Refresh(ctx, reason)
	if errors.Is(err, apperrors.ErrRefreshInProgress) {
		return nil
	}
	return err
}

// Broadcast asks every replica listening on the refresh topic to refresh.
func (r *Refresher) Broadcast(ctx context.Context, reason string) error {
	if r.broadcaster == nil {
		return fmt.Errorf("%w: no refresh topic configured", apperrors.ErrInvalidInput)
	}
	return r.broadcaster.Publish(ctx, kafka.Event{
		Key:   "refresh",
		Value: Trigger{Reason: reason, RequestedAt: time.Now().UTC()},
	})
}
