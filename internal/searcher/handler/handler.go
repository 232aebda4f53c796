// Package handler serves the documentation search HTTP API: ranked search,
// entity browsing and lookup, prefix suggestions, refresh control and query
// cache management.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/middleware"
)

const maxFuzzyThreshold = 10

// EventSink receives search analytics events.
type EventSink interface {
	Track(event any)
}

// Deps are the collaborators of a Handler. Index and Engine are required;
// the rest may be nil, which disables the features that need them.
type Deps struct {
	Index     *docindex.Index
	Engine    *docsearch.Engine
	Cache     *cache.QueryCache
	Refresher *refresh.Refresher
	Events    EventSink
	Metrics   *metrics.Metrics
}

type Handler struct {
	Deps
	cfg    config.SearchConfig
	logger *slog.Logger
}

func New(deps Deps, cfg config.SearchConfig) *Handler {
	return &Handler{
		Deps:   deps,
		cfg:    cfg,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/entities", h.ListEntities)
	mux.HandleFunc("GET /api/v1/entities/{id}", h.GetEntity)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("GET /api/v1/index", h.IndexStatus)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search ranks entities against q. An absent or blank q lists every entity
// with score 0.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	query := strings.TrimSpace(params.Get("q"))
	opts, err := h.parseOptions(params.Get("limit"), params.Get("fuzzy"), params.Get("kinds"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	snap := h.Index.Snapshot()
	compute := func() (docsearch.Page, error) {
		return h.Engine.Search(snap, query, opts), nil
	}

	var page docsearch.Page
	cacheStatus := "disabled"
	if h.Cache != nil && query != "" {
		key := cache.Key{
			Version:        snap.Version(),
			Query:          query,
			Limit:          opts.Limit,
			FuzzyThreshold: opts.FuzzyThreshold,
			DisableFuzzy:   opts.DisableFuzzy,
			Kinds:          opts.Kinds,
		}
		var hit bool
		page, hit, err = h.Cache.GetOrCompute(ctx, key, compute)
		if err != nil {
			log.Error("search failed", "query", query, "error", err)
			h.writeAppError(w, err)
			return
		}
		// The key folds case, so a shared page may carry another caller's text.
		page.Query = query
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		page, _ = compute()
	}

	latency := time.Since(start)
	log.Info("search completed",
		"query", query,
		"total_hits", page.TotalHits,
		"returned", len(page.Hits),
		"cache", cacheStatus,
		"version", page.Version,
		"latency_ms", latency.Milliseconds(),
	)
	h.observeSearch(ctx, page, cacheStatus, latency)
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) observeSearch(ctx context.Context, page docsearch.Page, cacheStatus string, latency time.Duration) {
	if h.Metrics != nil {
		resultType := "hit"
		switch {
		case page.Query == "":
			resultType = "browse"
		case page.TotalHits == 0:
			resultType = "zero_result"
		}
		h.Metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
		h.Metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.Metrics.SearchResultsCount.Observe(float64(page.TotalHits))
	}
	if h.Events != nil && page.Query != "" {
		event := analytics.NewSearchEvent(page.Query, page.TotalHits, len(page.Hits), latency, cacheStatus == "hit", page.Version)
		event.RequestID = middleware.GetRequestID(ctx)
		h.Events.Track(event)
	}
}

func (h *Handler) parseOptions(limitStr, fuzzyStr, kindsStr string) (docsearch.Options, error) {
	opts := docsearch.Options{
		FuzzyThreshold: h.cfg.FuzzyThreshold,
		DisableFuzzy:   h.cfg.DisableFuzzy,
		Limit:          h.cfg.DefaultLimit,
	}
	limit, err := h.parseLimit(limitStr, h.cfg.DefaultLimit)
	if err != nil {
		return opts, err
	}
	opts.Limit = limit

	switch strings.ToLower(fuzzyStr) {
	case "":
	case "off", "false", "0":
		opts.DisableFuzzy = true
	case "on", "true":
		opts.DisableFuzzy = false
	default:
		n, err := strconv.Atoi(fuzzyStr)
		if err != nil || n < 0 || n > maxFuzzyThreshold {
			return opts, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "fuzzy must be on, off or an edit distance between 0 and %d", maxFuzzyThreshold)
		}
		opts.FuzzyThreshold = n
		opts.DisableFuzzy = false
	}

	if kindsStr != "" {
		for _, part := range strings.Split(kindsStr, ",") {
			kind, err := docindex.ParseMemberKind(part)
			if err != nil {
				return opts, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "kinds: %v", err)
			}
			opts.Kinds = append(opts.Kinds, kind)
		}
	}
	return opts, nil
}

func (h *Handler) parseLimit(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, h.cfg.MaxResults), nil
}

type memberView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entityView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Namespace   string       `json:"namespace"`
	Description string       `json:"description"`
	Source      string       `json:"source,omitempty"`
	Methods     []memberView `json:"methods"`
	Properties  []memberView `json:"properties"`
}

func viewOf(e docindex.Entity) entityView {
	v := entityView{
		ID:          e.ID,
		Name:        e.Name,
		Namespace:   e.Namespace,
		Description: e.Description,
		Source:      e.Source,
		Methods:     []memberView{},
		Properties:  []memberView{},
	}
	for _, m := range e.Members {
		mv := memberView{Name: m.Name, Description: m.Description}
		if m.Kind == docindex.KindMethod {
			v.Methods = append(v.Methods, mv)
		} else {
			v.Properties = append(v.Properties, mv)
		}
	}
	return v
}

type namespaceGroup struct {
	Namespace string       `json:"namespace"`
	Entities  []entityView `json:"entities"`
}

// ListEntities returns every entity in load order. With group=namespace the
// entities are grouped by namespace, groups ordered by first appearance.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	snap := h.Index.Snapshot()
	entities := snap.Entities()

	switch r.URL.Query().Get("group") {
	case "":
		views := make([]entityView, len(entities))
		for i, e := range entities {
			views[i] = viewOf(e)
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"version":  snap.Version(),
			"total":    len(views),
			"entities": views,
		})
	case "namespace":
		groups := []namespaceGroup{}
		pos := map[string]int{}
		for _, e := range entities {
			i, ok := pos[e.Namespace]
			if !ok {
				i = len(groups)
				pos[e.Namespace] = i
				groups = append(groups, namespaceGroup{Namespace: e.Namespace})
			}
			groups[i].Entities = append(groups[i].Entities, viewOf(e))
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"version":    snap.Version(),
			"total":      len(entities),
			"namespaces": groups,
		})
	default:
		h.writeAppError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "group must be empty or namespace"))
	}
}

func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.Index.Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(e))
}

// Suggest completes prefix against the indexed field texts and words.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	limit, err := h.parseLimit(r.URL.Query().Get("limit"), h.cfg.SuggestLimit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"prefix":      prefix,
		"suggestions": h.Index.Suggest(prefix, limit),
	})
}

func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"loaded": h.Index.Loaded(),
		"stats":  h.Index.Stats(),
	}
	if h.Refresher != nil {
		body["refresh"] = h.Refresher.Status()
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Refresh rebuilds the index now and reports the new snapshot. With
// broadcast=true the request is published to every replica instead.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.Refresher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "refresh is not configured")
		return
	}
	ctx := r.Context()
	if r.URL.Query().Get("broadcast") == "true" {
		if err := h.Refresher.Broadcast(ctx, "http"); err != nil {
			h.writeAppError(w, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "broadcast"})
		return
	}
	res, err := h.Refresher.Refresh(ctx, "http")
	if err != nil {
		logger.FromContext(ctx).Warn("refresh request failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err onto a status code; internal errors are not echoed.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}
