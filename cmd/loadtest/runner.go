package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	endpointSearch  = "search"
	endpointSuggest = "suggest"
)

type Config struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	Limit        int
	SuggestEvery int
	Queries      []string
}

// Sample is the outcome of one request. Status 0 means a transport error.
type Sample struct {
	Latency time.Duration
	Status  int
	Empty   bool
}

// Results collects samples per endpoint from many workers.
type Results struct {
	mu      sync.Mutex
	samples map[string][]Sample
}

func NewResults() *Results {
	return &Results{samples: make(map[string][]Sample)}
}

func (r *Results) Add(endpoint string, s Sample) {
	r.mu.Lock()
	r.samples[endpoint] = append(r.samples[endpoint], s)
	r.mu.Unlock()
}

// request builds the URL for the n-th request of a worker.
func (c Config) request(n int) (endpoint, rawURL string) {
	query := c.Queries[n%len(c.Queries)]
	if c.SuggestEvery > 0 && n%c.SuggestEvery == c.SuggestEvery-1 {
		return endpointSuggest, fmt.Sprintf("%s/api/v1/suggest?prefix=%s&limit=%d",
			c.BaseURL, url.QueryEscape(prefixOf(query)), c.Limit)
	}
	return endpointSearch, fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d",
		c.BaseURL, url.QueryEscape(query), c.Limit)
}

func run(cfg Config) *Results {
	results := NewResults()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for n := w; gctx.Err() == nil; n++ {
				endpoint, rawURL := cfg.request(n)
				sample := fetch(gctx, client, endpoint, rawURL)
				if gctx.Err() != nil && sample.Status == 0 {
					// Cut off by the deadline, not a failure.
					return nil
				}
				results.Add(endpoint, sample)
			}
			return nil
		})
	}

	fmt.Print("Running")
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	_ = g.Wait()
	fmt.Print(" done!\n\n")
	return results
}

func fetch(ctx context.Context, client *http.Client, endpoint, rawURL string) Sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Sample{}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Sample{Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	s := Sample{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		s.Empty = emptyBody(endpoint, resp.Body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	s.Latency = time.Since(start)
	return s
}

// emptyBody reports whether a successful response found nothing.
func emptyBody(endpoint string, body io.Reader) bool {
	var page struct {
		TotalHits   int      `json:"total_hits"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.NewDecoder(body).Decode(&page); err != nil {
		return false
	}
	if endpoint == endpointSuggest {
		return len(page.Suggestions) == 0
	}
	return page.TotalHits == 0
}
