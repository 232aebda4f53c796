// Package cache memoises search pages in Redis. Keys embed the index
// snapshot version, so a refresh makes every earlier entry unreachable even
// before Invalidate clears it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/redis"
)

const keyPrefix = "docsearch:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cacheable search. Two keys that differ only in query
// case or surrounding space are equal.
type Key struct {
	Version        uint64
	Query          string
	Limit          int
	FuzzyThreshold int
	DisableFuzzy   bool
	Kinds          []docindex.MemberKind
}

func (k Key) String() string {
	kinds := slices.Clone(k.Kinds)
	slices.Sort(kinds)
	kinds = slices.Compact(kinds)
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = kind.String()
	}
	raw := fmt.Sprintf("v=%d|q=%s|limit=%d|fuzzy=%d|nofuzzy=%t|kinds=%s",
		k.Version,
		tokenizer.Fold(strings.TrimSpace(k.Query)),
		k.Limit,
		k.FuzzyThreshold,
		k.DisableFuzzy,
		strings.Join(names, ","),
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key Key) (docsearch.Page, bool) {
	k := key.String()
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return docsearch.Page{}, false
	}
	var page docsearch.Page
	if err := json.Unmarshal([]byte(data), &page); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return docsearch.Page{}, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return page, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, page docsearch.Page) {
	k := key.String()
	data, err := json.Marshal(page)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached page for key, or computes, stores and
// returns it. Concurrent misses on the same key share one computation. The
// boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, key Key, compute func() (docsearch.Page, error)) (docsearch.Page, bool, error) {
	if page, ok := c.Get(ctx, key); ok {
		return page, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		page, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, page)
		return page, nil
	})
	if err != nil {
		return docsearch.Page{}, false, err
	}
	return val.(docsearch.Page), false, nil
}

// Invalidate deletes every cached page.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
