// Package analytics records search and lookup traffic. Services track
// events through a Collector that publishes them to Kafka; the analytics
// service consumes them into an Aggregator.
package analytics

import "time"

// EventType discriminates events on the analytics topic.
type EventType string

const (
	EventSearch EventType = "search"
	EventLookup EventType = "lookup"
)

// LookupKind names the catalog lookup an event records.
type LookupKind string

const (
	LookupEntry         LookupKind = "entry"
	LookupCategory      LookupKind = "category"
	LookupEntryCategory LookupKind = "entry_category"
)

// SearchEvent records one served search.
type SearchEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Term        string    `json:"term"`
	Limit       int       `json:"limit"`
	TotalHits   int       `json:"total_hits"`
	Returned    int       `json:"returned"`
	TopTier     string    `json:"top_tier,omitempty"`
	Suggestions int       `json:"suggestions,omitempty"`
	LatencyMs   float64   `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// LookupEvent records one id lookup and whether it found anything.
type LookupEvent struct {
	Type      EventType  `json:"type"`
	Kind      LookupKind `json:"kind"`
	ID        string     `json:"id"`
	Found     bool       `json:"found"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// Tracker accepts events without blocking.
type Tracker interface {
	Track(event any)
}

type fanout []Tracker

func (f fanout) Track(event any) {
	for _, t := range f {
		t.Track(event)
	}
}

// Fanout returns a Tracker that forwards every event to each non-nil t.
func Fanout(trackers ...Tracker) Tracker {
	var f fanout
	for _, t := range trackers {
		if t != nil {
			f = append(f, t)
		}
	}
	return f
}
