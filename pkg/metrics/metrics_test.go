package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewWithRegistryIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.SearchQueriesTotal.WithLabelValues(OutcomeZeroResult).Inc()
	m.CatalogEntries.Set(41)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(OutcomeZeroResult)))
	n, err := testutil.GatherAndCount(reg, "methodref_search_queries_total", "methodref_catalog_entries")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A second set on a fresh registry must not panic on duplicate names.
	assert.NotPanics(t, func() { NewWithRegistry(prometheus.NewRegistry()) })
}

func TestServerRunsUntilCancelled(t *testing.T) {
	s := NewServer(0)
	s.Handle("GET /health/live", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "alive")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error { return s.Run(ctx) })

	base := "http://" + s.Addr().String()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	resp, err := client.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(base + "/health/live")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "alive", string(body))

	cancel()
	require.NoError(t, g.Wait())
}
