// Package handler exposes catalog lookups and search over HTTP for the
// dashboard's presentation layer.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pydash/methodref/internal/analytics"
	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/searcher/cache"
	"github.com/pydash/methodref/internal/searcher/executor"
	"github.com/pydash/methodref/internal/searcher/parser"
	"github.com/pydash/methodref/internal/searcher/suggest"
	"github.com/pydash/methodref/pkg/config"
	apperrors "github.com/pydash/methodref/pkg/errors"
	"github.com/pydash/methodref/pkg/logger"
	"github.com/pydash/methodref/pkg/metrics"
	"github.com/pydash/methodref/pkg/middleware"
)

// limitAll is the limit used for limit=all; it disables truncation.
const limitAll = -1

// Deps are the collaborators a Handler needs. Catalog and Executor are
// required; the rest may be nil to disable the feature.
type Deps struct {
	Catalog   *catalog.Catalog
	Executor  *executor.Executor
	Suggester *suggest.Suggester
	Cache     *cache.QueryCache
	Tracker   analytics.Tracker
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

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/categories", h.ListCategories)
	mux.HandleFunc("GET /api/v1/categories/{id}", h.GetCategory)
	mux.HandleFunc("GET /api/v1/methods/{id}", h.GetMethod)
	mux.HandleFunc("GET /api/v1/methods/{id}/category", h.GetMethodCategory)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// MethodResponse is an entry together with the id of its category.
type MethodResponse struct {
	catalog.MethodEntry
	CategoryID string `json:"category_id"`
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.Catalog.AllCategories()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"count":      len(categories),
	})
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cat, ok := h.Catalog.FindCategory(id)
	h.recordLookup(r, analytics.LookupCategory, id, ok)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrCategoryNotFound, http.StatusNotFound, "no category with id %q", id))
		return
	}
	h.writeJSON(w, http.StatusOK, cat)
}

func (h *Handler) GetMethod(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := h.Catalog.FindByID(id)
	h.recordLookup(r, analytics.LookupEntry, id, ok)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrEntryNotFound, http.StatusNotFound, "no method with id %q", id))
		return
	}
	categoryID, _ := h.Catalog.ResolveCategoryForEntry(id)
	h.writeJSON(w, http.StatusOK, MethodResponse{MethodEntry: entry, CategoryID: categoryID})
}

func (h *Handler) GetMethodCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	categoryID, ok := h.Catalog.ResolveCategoryForEntry(id)
	h.recordLookup(r, analytics.LookupEntryCategory, id, ok)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrEntryNotFound, http.StatusNotFound, "no method with id %q", id))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"entry_id":    id,
		"category_id": categoryID,
	})
}

// Search handles GET /api/v1/search?q=&limit=. The engine returns every
// match; truncation to limit happens here.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	plan := parser.Parse(query)
	if h.cfg.MaxQueryLength > 0 && plan.Length() > h.cfg.MaxQueryLength {
		h.countSearch(metrics.OutcomeRejected)
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query longer than %d characters", h.cfg.MaxQueryLength))
		return
	}

	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.countSearch(metrics.OutcomeRejected)
		h.writeError(w, err)
		return
	}

	if plan.Empty() {
		h.countSearch(metrics.OutcomeEmpty)
		h.writeJSON(w, http.StatusOK, executor.NewResponse(query, nil, 0))
		return
	}

	compute := func() (*executor.Response, error) {
		return h.execute(plan, limit), nil
	}

	var (
		resp     *executor.Response
		cacheHit bool
	)
	if h.Cache != nil {
		resp, cacheHit, err = h.Cache.GetOrCompute(ctx, plan.Term, limit, compute)
	} else {
		resp, err = compute()
	}
	if err != nil {
		h.countSearch(metrics.OutcomeError)
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "search failed"))
		return
	}

	// resp may be shared with concurrent callers through the cache.
	out := *resp
	out.Query = query

	latency := time.Since(start)
	h.observeSearch(&out, cacheHit, latency)

	log.Info("search completed",
		"query", query,
		"total_hits", out.TotalHits,
		"returned", out.Returned,
		"suggestions", len(out.Suggestions),
		"cache_hit", cacheHit,
		"latency_ms", float64(latency.Microseconds())/1000,
	)
	if h.Tracker != nil {
		h.Tracker.Track(analytics.SearchEvent{
			Type:        analytics.EventSearch,
			Query:       query,
			Term:        plan.Term,
			Limit:       limit,
			TotalHits:   out.TotalHits,
			Returned:    out.Returned,
			TopTier:     topTier(&out),
			Suggestions: len(out.Suggestions),
			LatencyMs:   float64(latency.Microseconds()) / 1000,
			CacheHit:    cacheHit,
			Timestamp:   time.Now().UTC(),
			RequestID:   middleware.GetRequestID(ctx),
		})
	}

	if h.Cache != nil {
		w.Header().Set(CacheHeader, cacheHeaderValue(cacheHit))
	}
	h.writeJSON(w, http.StatusOK, &out)
}

// CacheHeader reports whether a search response was served from the cache.
const CacheHeader = "X-Cache"

func cacheHeaderValue(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func (h *Handler) execute(plan *parser.QueryPlan, limit int) *executor.Response {
	results := h.Executor.Execute(plan)
	total := len(results)
	if limit != limitAll && total > limit {
		results = results[:limit]
	}
	resp := executor.NewResponse(plan.RawQuery, results, total)
	if total == 0 && h.Suggester != nil {
		resp.Suggestions = h.Suggester.Words(plan.Term)
	}
	return resp
}

// parseLimit applies the default, rejects non-positive values and clamps to
// the configured maximum. "all" disables truncation.
func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.cfg.DefaultLimit, nil
	}
	if strings.EqualFold(raw, "all") {
		return limitAll, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			`limit must be a positive integer or "all"`)
	}
	if h.cfg.MaxResults > 0 && n > h.cfg.MaxResults {
		n = h.cfg.MaxResults
	}
	return n, nil
}

func topTier(resp *executor.Response) string {
	if len(resp.Results) == 0 {
		return ""
	}
	return resp.Results[0].MatchedOn
}

func (h *Handler) countSearch(outcome string) {
	if h.Metrics != nil {
		h.Metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) observeSearch(resp *executor.Response, cacheHit bool, latency time.Duration) {
	if h.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeHit
	if resp.TotalHits == 0 {
		outcome = metrics.OutcomeZeroResult
		if len(resp.Suggestions) > 0 {
			h.Metrics.SuggestionsServed.Inc()
		}
	} else {
		h.Metrics.SearchMatchTier.WithLabelValues(topTier(resp)).Inc()
	}
	h.Metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()

	cacheStatus := "disabled"
	switch {
	case h.Cache == nil:
	case cacheHit:
		cacheStatus = "hit"
		h.Metrics.CacheHitsTotal.Inc()
	default:
		cacheStatus = "miss"
		h.Metrics.CacheMissesTotal.Inc()
	}
	h.Metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	h.Metrics.SearchResultsCount.Observe(float64(resp.TotalHits))
}

func (h *Handler) recordLookup(r *http.Request, kind analytics.LookupKind, id string, found bool) {
	if h.Metrics != nil {
		outcome := "found"
		if !found {
			outcome = "not_found"
		}
		h.Metrics.LookupsTotal.WithLabelValues(string(kind), outcome).Inc()
	}
	if h.Tracker != nil {
		h.Tracker.Track(analytics.LookupEvent{
			Type:      analytics.EventLookup,
			Kind:      kind,
			ID:        id,
			Found:     found,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		})
	}
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
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, 0, "caching is disabled"))
		return
	}

	if err := h.Cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
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

// writeError renders err as {"error": message, "code": code}.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := apperrors.Render(err)
	h.writeJSON(w, status, body)
}
