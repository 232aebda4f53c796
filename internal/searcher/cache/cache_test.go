package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	fail error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
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

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func samplePage() docsearch.Page {
	return docsearch.Page{
		Query:     "ball",
		Version:   1,
		TotalHits: 1,
		Hits:      []docsearch.Hit{{ID: "Game.Core.Ball", Name: "Ball", Namespace: "Game.Core", Score: 1000}},
	}
}

func TestKeyNormalisation(t *testing.T) {
	base := Key{Version: 1, Query: "Ball", Limit: 10, FuzzyThreshold: 2}

	assert.Equal(t, base.String(), Key{Version: 1, Query: "  BALL ", Limit: 10, FuzzyThreshold: 2}.String())
	assert.True(t, strings.HasPrefix(base.String(), keyPrefix))

	assert.NotEqual(t, base.String(), Key{Version: 2, Query: "Ball", Limit: 10, FuzzyThreshold: 2}.String())
	assert.NotEqual(t, base.String(), Key{Version: 1, Query: "Ball", Limit: 5, FuzzyThreshold: 2}.String())
	assert.NotEqual(t, base.String(), Key{Version: 1, Query: "Ball", Limit: 10, FuzzyThreshold: 2, DisableFuzzy: true}.String())

	a := Key{Query: "x", Kinds: []docindex.MemberKind{docindex.KindProperty, docindex.KindMethod}}
	b := Key{Query: "x", Kinds: []docindex.MemberKind{docindex.KindMethod, docindex.KindProperty, docindex.KindMethod}}
	assert.Equal(t, a.String(), b.String())
}

func TestGetOrComputeCachesPages(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), time.Minute, m)
	key := Key{Version: 1, Query: "ball", Limit: 10}
	ctx := context.Background()

	calls := 0
	compute := func() (docsearch.Page, error) {
		calls++
		return samplePage(), nil
	}

	page, hit, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, samplePage(), page)

	page, hit, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, samplePage(), page)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestGetOrComputePropagatesErrors(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), Key{Query: "x"}, func() (docsearch.Page, error) {
		return docsearch.Page{}, errors.New("index not ready")
	})
	assert.EqualError(t, err, "index not ready")
}

func TestGetOrComputeCoalescesConcurrentMisses(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	key := Key{Version: 1, Query: "ball"}
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), key, func() (docsearch.Page, error) {
				calls.Add(1)
				<-release
				return samplePage(), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestStoreErrorsAreMisses(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := New(store, time.Minute, nil)

	_, ok := c.Get(context.Background(), Key{Query: "ball"})
	assert.False(t, ok)
	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "ball"}, samplePage())
	store.data["unrelated"] = "keep"

	require.NoError(t, c.Invalidate(ctx))
	_, ok := c.Get(ctx, Key{Query: "ball"})
	assert.False(t, ok)
	assert.Contains(t, store.data, "unrelated")
}
