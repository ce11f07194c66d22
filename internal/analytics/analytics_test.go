package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pydash/methodref/pkg/config"
	"github.com/pydash/methodref/pkg/kafka"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := make([]kafka.Event, len(events))
	copy(batch, events)
	p.batches = append(p.batches, batch)
	return p.err
}

func (p *recordingPublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BufferSize: 10, BatchSize: 100, FlushInterval: time.Hour}, nil)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Term: "upper"})
	c.Track(LookupEvent{Type: EventLookup, Kind: LookupEntry, ID: "str-upper"})
	c.Close()

	events := pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, "search:upper", events[0].Key)
	assert.Equal(t, "lookup:str-upper", events[1].Key)

	// Tracking after Close is a no-op.
	c.Track(SearchEvent{Type: EventSearch})
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BufferSize: 10, BatchSize: 2, FlushInterval: time.Hour}, nil)
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Type: EventSearch, Term: "a"})
	c.Track(SearchEvent{Type: EventSearch, Term: "b"})

	assert.Eventually(t, func() bool { return len(pub.events()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(pub, config.AnalyticsConfig{BufferSize: 10, BatchSize: 100, FlushInterval: time.Hour}, nil)
	c.Start(ctx)

	c.Track(SearchEvent{Type: EventSearch, Term: "a"})
	cancel()
	c.Close()

	assert.Len(t, pub.events(), 1)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	var dropped int
	c := NewCollector(&recordingPublisher{}, config.AnalyticsConfig{BufferSize: 1}, func() { dropped++ })

	c.Track(SearchEvent{Type: EventSearch})
	c.Track(SearchEvent{Type: EventSearch})
	assert.Equal(t, 1, dropped)

	c.Start(context.Background())
	c.Close()
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Type: EventSearch, Term: "upper", TotalHits: 2, TopTier: "name", LatencyMs: 1})
	agg.Track(SearchEvent{Type: EventSearch, Term: "upper", TotalHits: 2, TopTier: "name", LatencyMs: 3, CacheHit: true})
	agg.Track(SearchEvent{Type: EventSearch, Term: "uper", TotalHits: 0, Suggestions: 1, LatencyMs: 2})
	agg.Track(SearchEvent{Type: EventSearch, Term: "", LatencyMs: 0.5})
	agg.Track(LookupEvent{Type: EventLookup, Kind: LookupEntry, ID: "str-upper", Found: true})
	agg.Track(LookupEvent{Type: EventLookup, Kind: LookupEntry, ID: "nope", Found: false})
	agg.Track("not an event")

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.SuggestionsServed)
	assert.Equal(t, int64(2), stats.TotalLookups)
	assert.Equal(t, int64(1), stats.LookupMisses)
	assert.Equal(t, map[string]int64{"name": 2}, stats.TopTiers)
	assert.Equal(t, []QueryCount{{"upper", 2}, {"uper", 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"uper", 1}}, stats.ZeroResultQueries)
	assert.Equal(t, []QueryCount{{"entry:nope", 1}}, stats.MissedIDs)
	assert.InDelta(t, 1.625, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, 2.0, stats.P50LatencyMs)
	assert.Equal(t, 3.0, stats.P99LatencyMs)
}

func TestAggregatorStatsIsACopy(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Type: EventSearch, Term: "x", TopTier: "id"})
	stats := agg.Stats()
	stats.TopTiers["id"] = 100
	assert.Equal(t, int64(1), agg.Stats().TopTiers["id"])
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		agg.Track(SearchEvent{Type: EventSearch, LatencyMs: 1})
	}
	agg.mu.Lock()
	defer agg.mu.Unlock()
	assert.Len(t, agg.latencies, maxLatencySamples)
}

func TestAggregatorKeyTablesAreCapped(t *testing.T) {
	const maxKeys = 50
	agg := NewAggregator(WithMaxTrackedKeys(maxKeys))
	for range 100 {
		agg.Track(SearchEvent{Type: EventSearch, Term: "upper", TotalHits: 3})
	}
	for i := range 1000 {
		agg.Track(SearchEvent{Type: EventSearch, Term: fmt.Sprintf("junk-%d", i)})
		agg.Track(LookupEvent{Type: EventLookup, Kind: LookupEntry, ID: fmt.Sprintf("id-%d", i)})
	}

	stats := agg.Stats()
	assert.Equal(t, int64(1100), stats.TotalSearches)
	assert.Equal(t, int64(1000), stats.LookupMisses)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{"upper", 100}, stats.TopQueries[0])

	agg.mu.Lock()
	defer agg.mu.Unlock()
	assert.LessOrEqual(t, len(agg.queryCounts), maxKeys)
	assert.LessOrEqual(t, len(agg.zeroResultQueries), maxKeys)
	assert.LessOrEqual(t, len(agg.missedIDs), maxKeys)
}

func TestAggregatorDefaultKeyCap(t *testing.T) {
	assert.Equal(t, DefaultMaxTrackedKeys, NewAggregator().maxKeys)
	assert.Equal(t, DefaultMaxTrackedKeys, NewAggregator(WithMaxTrackedKeys(0)).maxKeys)
	assert.Equal(t, 7, NewAggregator(WithMaxTrackedKeys(7)).maxKeys)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	search, err := json.Marshal(SearchEvent{Type: EventSearch, Term: "split", TotalHits: 3})
	require.NoError(t, err)
	lookup, err := json.Marshal(LookupEvent{Type: EventLookup, Kind: LookupCategory, ID: "x"})
	require.NoError(t, err)

	require.NoError(t, handle(ctx, kafka.Message{Value: search}))
	require.NoError(t, handle(ctx, kafka.Message{Value: lookup, Type: string(EventLookup)}))
	assert.Error(t, handle(ctx, kafka.Message{Value: []byte(`{not json`)}))
	assert.Error(t, handle(ctx, kafka.Message{Value: []byte(`{"type":"unknown"}`)}))
	assert.Error(t, handle(ctx, kafka.Message{Value: []byte(`[]`), Type: string(EventSearch)}))

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.LookupMisses)
}

func TestCollectorTagsEventType(t *testing.T) {
	e := toKafkaEvent(LookupEvent{Type: EventLookup, ID: "str-upper"})
	assert.Equal(t, "lookup:str-upper", e.Key)
	assert.Equal(t, string(EventLookup), e.Type)

	e = toKafkaEvent(SearchEvent{Type: EventSearch, Term: "upper"})
	assert.Equal(t, "search:upper", e.Key)
	assert.Equal(t, string(EventSearch), e.Type)
}

func TestFanout(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	Fanout(a, nil, b).Track(SearchEvent{Type: EventSearch, Term: "x"})
	assert.Equal(t, int64(1), a.Stats().TotalSearches)
	assert.Equal(t, int64(1), b.Stats().TotalSearches)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Type: EventSearch, Term: "x", TotalHits: 1})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalSearches)
}

func TestStatsHandlerTop(t *testing.T) {
	agg := NewAggregator()
	for _, term := range []string{"split", "split", "join", "upper"} {
		agg.Track(SearchEvent{Type: EventSearch, Term: term, TotalHits: 1})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []QueryCount{{Query: "split", Count: 2}, {Query: "join", Count: 1}}, got.TopQueries)

	for _, bad := range []string{"0", "abc", "101"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}
