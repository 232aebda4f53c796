package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/collector"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/metrics"
)

var searchCfg = config.SearchConfig{
	FuzzyThreshold: 2,
	DefaultLimit:   20,
	MaxResults:     50,
	SuggestLimit:   10,
}

func gameEntities() []docindex.Entity {
	return []docindex.Entity{
		{ID: "Game.Core.Ball", Name: "Ball", Description: "physics ball", Members: []docindex.Member{
			{Kind: docindex.KindMethod, Name: "Launch", Description: "fires the ball upward"},
			{Kind: docindex.KindProperty, Name: "Speed", Description: "current velocity"},
		}},
		{ID: "Game.Core.Paddle", Name: "Paddle", Description: "player paddle", Members: []docindex.Member{
			{Kind: docindex.KindMethod, Name: "Reset", Description: "centres the paddle"},
		}},
		{ID: "Game.UI.Score", Name: "Score", Description: "shows the score"},
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = map[string]string{}
	return n, nil
}

type sink struct {
	mu     sync.Mutex
	events []any
}

func (s *sink) Track(e any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type fixture struct {
	mux     *http.ServeMux
	index   *docindex.Index
	cache   *cache.QueryCache
	events  *sink
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx := docindex.New()
	require.NoError(t, idx.Load(gameEntities()))

	m := metrics.New(prometheus.NewRegistry())
	qc := cache.New(&memStore{data: map[string]string{}}, time.Minute, m)
	events := &sink{}
	r := refresh.New(idx, config.RefreshConfig{Timeout: time.Second, RetryAttempts: 1},
		collector.Static{Entities: gameEntities()})
	r.SetCache(qc)

	h := New(Deps{
		Index:     idx,
		Engine:    docsearch.NewEngine(docsearch.Options{FuzzyThreshold: 2}),
		Cache:     qc,
		Refresher: r,
		Events:    events,
		Metrics:   m,
	}, searchCfg)
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{mux: mux, index: idx, cache: qc, events: events, metrics: m}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestSearchRanksAndCaches(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=ball")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[docsearch.Page](t, rec)
	assert.Equal(t, "ball", page.Query)
	require.NotEmpty(t, page.Hits)
	assert.Equal(t, "Game.Core.Ball", page.Hits[0].ID)
	assert.Equal(t, uint64(1), page.Version)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=BALL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, page.Hits, decode[docsearch.Page](t, rec).Hits)

	hits, misses := f.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")))

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 2)
	assert.True(t, f.events.events[1].(analytics.SearchEvent).CacheHit)
}

func TestCachedPageEchoesRequestQuery(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=BALL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BALL", decode[docsearch.Page](t, rec).Query)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=+ball+")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ball", decode[docsearch.Page](t, rec).Query)

	hits, _ := f.cache.Stats()
	assert.Equal(t, int64(1), hits)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 2)
	assert.Equal(t, "BALL", f.events.events[0].(analytics.SearchEvent).Query)
	assert.Equal(t, "ball", f.events.events[1].(analytics.SearchEvent).Query)
}

func TestSearchBlankQueryBrowses(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/search?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	page := decode[docsearch.Page](t, rec)
	assert.Equal(t, 3, page.TotalHits)
	require.Len(t, page.Hits, 2)
	assert.Equal(t, "Game.Core.Ball", page.Hits[0].ID)
	assert.Equal(t, 0, page.Hits[0].Score)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("browse")))
}

func TestSearchOptions(t *testing.T) {
	f := newFixture(t)

	page := decode[docsearch.Page](t, f.do(t, http.MethodGet, "/api/v1/search?q=balll"))
	assert.Equal(t, 1, page.TotalHits)

	page = decode[docsearch.Page](t, f.do(t, http.MethodGet, "/api/v1/search?q=balll&fuzzy=off"))
	assert.Equal(t, 0, page.TotalHits)

	page = decode[docsearch.Page](t, f.do(t, http.MethodGet, "/api/v1/search?q=reset&kinds=property"))
	assert.Equal(t, 0, page.TotalHits)

	page = decode[docsearch.Page](t, f.do(t, http.MethodGet, "/api/v1/search?q=reset&kinds=method"))
	require.Equal(t, 1, page.TotalHits)
	assert.Equal(t, "Game.Core.Paddle", page.Hits[0].ID)
}

func TestSearchRejectsBadParameters(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/api/v1/search?q=ball&limit=0",
		"/api/v1/search?q=ball&limit=abc",
		"/api/v1/search?q=ball&fuzzy=99",
		"/api/v1/search?q=ball&kinds=event",
	} {
		rec := f.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "error", target)
	}
}

func TestSearchLimitIsCapped(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/search?limit=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[docsearch.Page](t, rec).Hits, 3)
}

func TestListEntities(t *testing.T) {
	f := newFixture(t)

	body := decode[struct {
		Total    int          `json:"total"`
		Entities []entityView `json:"entities"`
	}](t, f.do(t, http.MethodGet, "/api/v1/entities"))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, "Game.Core.Ball", body.Entities[0].ID)
	assert.Len(t, body.Entities[0].Methods, 1)
	assert.Len(t, body.Entities[0].Properties, 1)

	grouped := decode[struct {
		Namespaces []namespaceGroup `json:"namespaces"`
	}](t, f.do(t, http.MethodGet, "/api/v1/entities?group=namespace"))
	require.Len(t, grouped.Namespaces, 2)
	assert.Equal(t, "Game.Core", grouped.Namespaces[0].Namespace)
	assert.Len(t, grouped.Namespaces[0].Entities, 2)
	assert.Equal(t, "Game.UI", grouped.Namespaces[1].Namespace)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/entities?group=kind").Code)
}

func TestGetEntity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/entities/Game.Core.Paddle")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[entityView](t, rec)
	assert.Equal(t, "Paddle", v.Name)
	assert.Equal(t, []memberView{{Name: "Reset", Description: "centres the paddle"}}, v.Methods)
	assert.Empty(t, v.Properties)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/entities/Game.Core.Brick").Code)
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	body := decode[struct {
		Suggestions []string `json:"suggestions"`
	}](t, f.do(t, http.MethodGet, "/api/v1/suggest?prefix=Pa&limit=2"))
	assert.Equal(t, []string{"paddle"}, body.Suggestions)

	body = decode[struct {
		Suggestions []string `json:"suggestions"`
	}](t, f.do(t, http.MethodGet, "/api/v1/suggest?prefix="))
	assert.Empty(t, body.Suggestions)
}

func TestRefreshEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=ball")

	rec := f.do(t, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[refresh.Result](t, rec)
	assert.Equal(t, uint64(2), res.Version)
	assert.Equal(t, "http", res.Trigger)

	status := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/index"))
	assert.Equal(t, true, status["loaded"])
	assert.Contains(t, status, "refresh")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/refresh?broadcast=true").Code)
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=ball")

	stats := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/cache/stats"))
	assert.Equal(t, float64(1), stats["misses"])

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "invalidated"))
}

func TestOptionalDependenciesDisabled(t *testing.T) {
	idx := docindex.New()
	require.NoError(t, idx.Load(gameEntities()))
	h := New(Deps{Index: idx, Engine: docsearch.NewEngine(docsearch.Options{})}, searchCfg)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=paddle", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
