// Package metrics defines the Prometheus collectors used by the method
// reference services and exposes an HTTP handler for scraping. Every metric
// is prefixed with the "methodref" namespace.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "methodref"

// Search outcomes recorded in SearchQueriesTotal.
const (
	OutcomeHit        = "hit"
	OutcomeZeroResult = "zero_result"
	OutcomeEmpty      = "empty_query"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// HTTP collectors use the label names promhttp expects ("method",
	// "code") plus "route", which middleware curries per request.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	SearchMatchTier    *prometheus.CounterVec
	SuggestionsServed  prometheus.Counter

	LookupsTotal      *prometheus.CounterVec
	CatalogCategories prometheus.Gauge
	CatalogEntries    prometheus.Gauge

	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
	AnalyticsDropped    prometheus.Counter
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() so they do not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http",
			Name:    "request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"method", "route"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "queries_total",
			Help: "Search requests by outcome (hit, zero_result, empty_query, rejected, error).",
		}, []string{"outcome"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search",
			Name:    "latency_seconds",
			Help:    "Search latency including cache lookup, by cache status.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search",
			Name:    "matches",
			Help:    "Matching entries per search before truncation.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		SearchMatchTier: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "top_tier_total",
			Help: "Tier of the best-ranked result per search (name, id, tags, description).",
		}, []string{"tier"}),
		SuggestionsServed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "suggestions_served_total",
			Help: "Zero-result searches answered with at least one suggestion.",
		}),

		LookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog",
			Name: "lookups_total",
			Help: "Catalog lookups by kind (entry, category, entry_category) and outcome (found, not_found).",
		}, []string{"kind", "outcome"}),
		CatalogCategories: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "catalog",
			Name: "categories",
			Help: "Categories in the loaded catalog.",
		}),
		CatalogEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "catalog",
			Name: "entries",
			Help: "Method entries in the loaded catalog.",
		}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "hits_total",
			Help: "Search responses served from the cache.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "misses_total",
			Help: "Searches computed because the cache had no entry or was unreachable.",
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		AnalyticsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analytics",
			Name: "events_dropped_total",
			Help: "Analytics events dropped because the collector buffer was full.",
		}),
	}
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
