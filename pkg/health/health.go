// Package health runs registered dependency checks (the documentation index,
// Redis, Postgres) in parallel and reports the worst status for liveness and
// readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// DefaultCheckTimeout bounds each check when the Checker sets none.
const DefaultCheckTimeout = 2 * time.Second

var severity = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

// worse returns whichever of a and b is more severe.
func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Check probes one dependency. It should return promptly once ctx is done.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// PingCheck turns a ping into a Check. A failed ping marks the component
// down, or only degraded when optional is set.
func PingCheck(ping func(ctx context.Context) error, optional bool) Check {
	failed := StatusDown
	if optional {
		failed = StatusDegraded
	}
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Checker holds named checks. Checks may be registered while probes run.
type Checker struct {
	// Timeout bounds each check; zero means DefaultCheckTimeout.
	Timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Check
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run executes every check concurrently, each under its own timeout. A check
// that panics or outlives its timeout counts as down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	var mu sync.Mutex
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
	}
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.probe(ctx, check, timeout)
			mu.Lock()
			report.Components[name] = result
			report.Status = worse(report.Status, result.Status)
			mu.Unlock()
			if result.Status != StatusUp {
				c.logger.Warn("component unhealthy", "name", name, "status", result.Status, "message", result.Message)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.CheckedAt = time.Now().UTC()
	return report
}

func (c *Checker) probe(ctx context.Context, check Check, timeout time.Duration) (result ComponentHealth) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check panicked: %v", p)}
		}
		if ctx.Err() != nil && result.Status == StatusUp {
			result = ComponentHealth{Status: StatusDown, Message: "check timed out"}
		}
		result.LatencyMs = time.Since(start).Milliseconds()
	}()
	return check(ctx)
}

// LiveHandler answers liveness probes; it never runs checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes. A degraded report is still ready;
// only a down component fails the probe.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
