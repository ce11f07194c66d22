package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pydash/methodref/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

// AggregatedStats is a point-in-time summary of search and lookup traffic.
type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	TotalLookups      int64            `json:"total_lookups"`
	LookupMisses      int64            `json:"lookup_misses"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	SuggestionsServed int64            `json:"suggestions_served"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	TopTiers          map[string]int64 `json:"top_tiers"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	MissedIDs         []QueryCount     `json:"missed_ids"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

// QueryCount pairs a query term or id with how often it was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator accumulates events in memory. It is safe for concurrent use.
type Aggregator struct {
	mu                sync.Mutex
	stats             AggregatedStats
	latencies         []float64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	missedIDs         map[string]int64
	maxKeys           int
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

// DefaultMaxTrackedKeys caps each keyed table (queries, zero-result queries,
// missed ids). Terms and ids come from clients, so the tables must not grow
// with the number of distinct values they send.
const DefaultMaxTrackedKeys = 10000

// evictionSample is how many keys are inspected to pick a victim when a
// table is full.
const evictionSample = 16

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMaxTrackedKeys sets the per-table key cap. Values below 1 keep the
// default.
func WithMaxTrackedKeys(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxKeys = n
		}
	}
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		stats:             AggregatedStats{TopTiers: make(map[string]int64)},
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		missedIDs:         make(map[string]int64),
		maxKeys:           DefaultMaxTrackedKeys,
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// bump increments key in counts. When counts is full and key is new, the
// lowest-count key among a random sample is evicted first, so rare terms
// make room while frequent ones stay ranked.
func (a *Aggregator) bump(counts map[string]int64, key string) {
	if _, ok := counts[key]; !ok && len(counts) >= a.maxKeys {
		var (
			victim string
			lowest int64
			seen   int
		)
		for k, c := range counts {
			if seen == 0 || c < lowest {
				victim, lowest = k, c
			}
			if seen++; seen == evictionSample {
				break
			}
		}
		delete(counts, victim)
	}
	counts[key]++
}

// Track records a SearchEvent or LookupEvent directly, for in-process use.
func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearchEvent(e)
	case LookupEvent:
		a.recordLookupEvent(e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
	}
}

// HandleEvent decodes analytics messages from Kafka into agg. The event
// type comes from the message header, or from the JSON "type" field for
// producers that send no header. Undecodable messages are returned as errors
// and skipped by the consumer.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, msg kafka.Message) error {
		eventType := EventType(msg.Type)
		if eventType == "" {
			envelope, err := kafka.DecodeJSON[struct {
				Type EventType `json:"type"`
			}](msg.Value)
			if err != nil {
				return err
			}
			eventType = envelope.Type
		}

		switch eventType {
		case EventSearch:
			event, err := kafka.DecodeJSON[SearchEvent](msg.Value)
			if err != nil {
				return fmt.Errorf("search event: %w", err)
			}
			agg.recordSearchEvent(event)
		case EventLookup:
			event, err := kafka.DecodeJSON[LookupEvent](msg.Value)
			if err != nil {
				return fmt.Errorf("lookup event: %w", err)
			}
			agg.recordLookupEvent(event)
		default:
			return fmt.Errorf("unknown analytics event type %q", eventType)
		}
		return nil
	}
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalSearches++
	if event.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	if event.TopTier != "" {
		a.stats.TopTiers[event.TopTier]++
	}
	if event.Suggestions > 0 {
		a.stats.SuggestionsServed++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}

	term := event.Term
	if term == "" {
		return
	}
	a.bump(a.queryCounts, term)
	if event.TotalHits == 0 {
		a.stats.ZeroResultCount++
		a.bump(a.zeroResultQueries, term)
	}
}

func (a *Aggregator) recordLookupEvent(event LookupEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalLookups++
	if !event.Found {
		a.stats.LookupMisses++
		a.bump(a.missedIDs, string(event.Kind)+":"+event.ID)
	}
}

// DefaultTopN is how many entries Stats keeps in each ranked list.
const DefaultTopN = 10

// Stats returns a snapshot of everything recorded so far.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopN)
}

// StatsTop is Stats with n entries in each ranked list.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	stats.TopTiers = make(map[string]int64, len(a.stats.TopTiers))
	for tier, n := range a.stats.TopTiers {
		stats.TopTiers[tier] = n
	}

	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	stats.MissedIDs = topN(a.missedIDs, n)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent keys, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
