package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/kafka"
)

func TestAggregatorRecordsSearches(t *testing.T) {
	a := NewAggregator()
	a.RecordSearch(NewSearchEvent("Ball", 3, 3, 4*time.Millisecond, false, 1))
	a.RecordSearch(NewSearchEvent("ball", 3, 3, 2*time.Millisecond, true, 1))
	a.RecordSearch(NewSearchEvent("xyz", 0, 0, 6*time.Millisecond, false, 1))

	stats := a.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.InDelta(t, 4.0, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(4), stats.P50LatencyMs)
	assert.Equal(t, []QueryCount{{Query: "ball", Count: 2}, {Query: "xyz", Count: 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{Query: "xyz", Count: 1}}, stats.ZeroResultQueries)
}

func TestAggregatorRecordsRefreshes(t *testing.T) {
	a := NewAggregator()
	now := time.Now().UTC()
	a.RecordRefresh(RefreshEvent{Type: EventRefresh, Success: true, Version: 4, Entities: 12, Timestamp: now})
	a.RecordRefresh(RefreshEvent{Type: EventRefresh, Success: false, Error: "registry down"})

	stats := a.Stats()
	assert.Equal(t, int64(2), stats.Refreshes)
	assert.Equal(t, int64(1), stats.FailedRefreshes)
	assert.Equal(t, uint64(4), stats.IndexVersion)
	assert.Equal(t, 12, stats.IndexedEntities)
	require.NotNil(t, stats.LastRefresh)
	assert.True(t, now.Equal(*stats.LastRefresh))
}

func TestAggregatorHandleMessageDecodesByType(t *testing.T) {
	a := NewAggregator()
	search, err := json.Marshal(NewSearchEvent("paddle", 1, 1, time.Millisecond, false, 2))
	require.NoError(t, err)
	refresh, err := json.Marshal(RefreshEvent{Type: EventRefresh, Success: true, Version: 2})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.HandleMessage(ctx, nil, search))
	require.NoError(t, a.HandleMessage(ctx, nil, refresh))
	require.NoError(t, a.HandleMessage(ctx, nil, []byte(`{"type":"mystery"}`)))
	require.NoError(t, a.HandleMessage(ctx, nil, []byte(`not json`)))

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.Refreshes)
}

func TestAggregatorRestore(t *testing.T) {
	a := NewAggregator()
	a.Restore(AggregatedStats{TotalSearches: 10, CacheHits: 4, Refreshes: 2})
	a.RecordSearch(NewSearchEvent("ball", 1, 1, 0, true, 1))

	stats := a.Stats()
	assert.Equal(t, int64(11), stats.TotalSearches)
	assert.Equal(t, int64(5), stats.CacheHits)
	assert.Equal(t, int64(2), stats.Refreshes)
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kafka.Event
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollectorFlushesOnBatchSizeAndClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, 2, time.Hour)
	c.Start(context.Background())

	c.Track(NewSearchEvent("ball", 1, 1, 0, false, 1))
	c.Track(RefreshEvent{Type: EventRefresh, Success: true})
	require.Eventually(t, func() bool { return len(pub.events()) == 2 }, time.Second, 5*time.Millisecond)

	c.Track(NewSearchEvent("paddle", 1, 1, 0, false, 1))
	c.Close()

	events := pub.events()
	require.Len(t, events, 3)
	assert.Equal(t, "search", events[0].Key)
	assert.Equal(t, "refresh", events[1].Key)
	assert.Equal(t, "search", events[2].Key)
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(NewSearchEvent("ball", 1, 1, 0, false, 1))
	cancel()
	<-c.done

	assert.Len(t, pub.events(), 1)
}

func TestLocalPublisherFeedsAggregator(t *testing.T) {
	a := NewAggregator()
	c := NewCollector(LocalPublisher{Aggregator: a}, 16, 1, time.Hour)
	c.Start(context.Background())
	c.Track(NewSearchEvent("ball", 0, 0, 0, false, 1))
	c.Close()

	assert.Equal(t, int64(1), a.Stats().ZeroResultCount)
}

func TestHandlerServesStats(t *testing.T) {
	a := NewAggregator()
	a.RecordSearch(NewSearchEvent("ball", 2, 2, 0, false, 1))

	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, int64(1), got.TotalSearches)
}

func TestHandlerTopParameter(t *testing.T) {
	a := NewAggregator()
	for _, q := range []string{"ball", "ball", "paddle", "brick"} {
		a.RecordSearch(NewSearchEvent(q, 1, 1, 0, false, 1))
	}
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, []QueryCount{{Query: "ball", Count: 2}, {Query: "brick", Count: 1}}, got.TopQueries)

	for _, bad := range []string{"0", "101", "many"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}
