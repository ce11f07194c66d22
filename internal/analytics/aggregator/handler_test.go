package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydash/methodref/internal/analytics"
)

type fakeLister struct {
	snaps     []Snapshot
	err       error
	lastLimit int
}

func (f *fakeLister) List(_ context.Context, limit int) ([]Snapshot, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps[:min(limit, len(f.snaps))], nil
}

func TestSnapshotsHandler(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	l := &fakeLister{snaps: []Snapshot{
		{ID: 2, CapturedAt: at, Stats: analytics.AggregatedStats{TotalSearches: 9}},
		{ID: 1, CapturedAt: at.Add(-time.Minute), Stats: analytics.AggregatedStats{TotalSearches: 4}},
	}}
	h := SnapshotsHandler(l)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, l.lastLimit)

	var body struct {
		Snapshots []Snapshot `json:"snapshots"`
		Count     int        `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, int64(2), body.Snapshots[0].ID)
	assert.Equal(t, int64(9), body.Snapshots[0].Stats.TotalSearches)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, defaultListLimit, l.lastLimit)
}

func TestSnapshotsHandlerErrors(t *testing.T) {
	for _, raw := range []string{"0", "-3", "many", "501"} {
		rec := httptest.NewRecorder()
		SnapshotsHandler(&fakeLister{})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit="+raw, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}

	rec := httptest.NewRecorder()
	SnapshotsHandler(&fakeLister{err: errors.New("connection refused")})(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestChanged(t *testing.T) {
	prev := &analytics.AggregatedStats{TotalSearches: 3, TotalLookups: 1}

	assert.True(t, changed(nil, analytics.AggregatedStats{}))
	assert.False(t, changed(prev, analytics.AggregatedStats{TotalSearches: 3, TotalLookups: 1}))
	assert.True(t, changed(prev, analytics.AggregatedStats{TotalSearches: 4, TotalLookups: 1}))
	assert.True(t, changed(prev, analytics.AggregatedStats{TotalSearches: 3, TotalLookups: 2}))
}
