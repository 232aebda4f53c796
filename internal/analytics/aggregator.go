package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	defaultTopQueries = 10
	maxTopQueries     = 100
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Refreshes         int64        `json:"refreshes"`
	FailedRefreshes   int64        `json:"failed_refreshes"`
	IndexVersion      uint64       `json:"index_version"`
	IndexedEntities   int          `json:"indexed_entities"`
	LastRefresh       *time.Time   `json:"last_refresh,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and refresh events into running totals. Queries
// are counted by their case-folded form so "Ball" and "ball" share a row.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	refreshes         int64
	failedRefreshes   int64
	lastRefresh       RefreshEvent
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleMessage decodes a Kafka analytics message and records it. Unknown or
// malformed events are logged and skipped so the consumer keeps moving.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	if err := a.decode(value); err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
	}
	return nil
}

func (a *Aggregator) decode(value []byte) error {
	envelope, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		return err
	}
	switch envelope.Type {
	case EventSearch:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decoding search event: %w", err)
		}
		a.RecordSearch(e)
	case EventRefresh:
		var e RefreshEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decoding refresh event: %w", err)
		}
		a.RecordRefresh(e)
	default:
		return fmt.Errorf("unknown event type %q", envelope.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	query := tokenizer.Fold(event.Query)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[query]++
	}
}

func (a *Aggregator) RecordRefresh(event RefreshEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	if !event.Success {
		a.failedRefreshes++
		return
	}
	a.lastRefresh = event
}

// Restore seeds the running totals from a persisted snapshot. Latency
// samples and per-query counts start empty.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches += stats.TotalSearches
	a.cacheHits += stats.CacheHits
	a.cacheMisses += stats.CacheMisses
	a.zeroResults += stats.ZeroResultCount
	a.refreshes += stats.Refreshes
	a.failedRefreshes += stats.FailedRefreshes
}

// Stats summarises everything recorded so far, listing the ten most
// frequent queries.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopQueries)
}

// StatsTop is Stats with the top and zero-result query lists capped at top.
func (a *Aggregator) StatsTop(top int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		Refreshes:       a.refreshes,
		FailedRefreshes: a.failedRefreshes,
		IndexVersion:    a.lastRefresh.Version,
		IndexedEntities: a.lastRefresh.Entities,
	}
	if !a.lastRefresh.Timestamp.IsZero() {
		ts := a.lastRefresh.Timestamp
		stats.LastRefresh = &ts
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, top)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, top)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// LocalPublisher feeds batches straight into an Aggregator, standing in for
// Kafka when the service runs alone.
type LocalPublisher struct {
	Aggregator *Aggregator
}

func (p LocalPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		switch v := e.Value.(type) {
		case SearchEvent:
			p.Aggregator.RecordSearch(v)
		case RefreshEvent:
			p.Aggregator.RecordRefresh(v)
		}
	}
	return nil
}
