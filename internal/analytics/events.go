package analytics

import "time"

type EventType string

const (
	EventSearch  EventType = "search"
	EventRefresh EventType = "refresh"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// RefreshEvent describes one attempt to rebuild the documentation index.
type RefreshEvent struct {
	Type      EventType `json:"type"`
	Trigger   string    `json:"trigger"`
	Success   bool      `json:"success"`
	Version   uint64    `json:"version"`
	Entities  int       `json:"entities"`
	Members   int       `json:"members"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSearchEvent stamps a search event with its type and the current time.
func NewSearchEvent(query string, totalHits, returned int, latency time.Duration, cacheHit bool, version uint64) SearchEvent {
	return SearchEvent{
		Type:      EventSearch,
		Query:     query,
		TotalHits: totalHits,
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}
