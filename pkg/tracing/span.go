// Package tracing times the phases of a documentation refresh (collection
// per source, snapshot build, cache invalidation) as a tree of spans carried
// through the context, and logs the finished tree through slog.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/logger"
)

type contextKey struct{}

// Span is one timed phase. Children may be added concurrently.
type Span struct {
	Name    string
	TraceID string
	Start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []any
	children []*Span
}

// Start opens a span named name. Inside an existing span it becomes a child
// sharing the parent's trace ID; otherwise it is a root whose trace ID is the
// request ID in ctx, or a fresh UUID.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else if id := logger.RequestID(ctx); id != "" {
		span.TraceID = id
	} else {
		span.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.Start)
		s.ended = true
	}
}

// SetAttr attaches a key/value pair logged with the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Duration is zero until End.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Children returns the child spans in the order they started.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// Log writes the span and its descendants at debug level, one record per
// span, each carrying its slash-joined path from the root.
func (s *Span) Log(l *slog.Logger) {
	s.log(l, s.Name)
}

func (s *Span) log(l *slog.Logger, path string) {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", path,
		"duration_ms", s.duration.Milliseconds(),
	}, s.attrs...)
	children := s.children
	s.mu.Unlock()

	l.Debug("span", attrs...)
	for _, c := range children {
		c.log(l, path+"/"+c.Name)
	}
}
