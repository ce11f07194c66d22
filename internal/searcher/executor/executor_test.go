package executor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/searcher/ranker"
)

func stringCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Category{
		{
			ID:    "string-methods",
			Title: "String Methods",
			Entries: []catalog.MethodEntry{
				{ID: "str-upper", Name: "upper", Description: "Converts text to uppercase"},
				{ID: "str-lower", Name: "lower", Description: "Converts text to lowercase, useful for uppercase-insensitive comparisons"},
			},
		},
	})
	require.NoError(t, err)
	return c
}

func ids(results []SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entry().ID
	}
	return out
}

func TestSearchNameBeforeDescription(t *testing.T) {
	exec := New(stringCatalog(t))

	results := exec.Search("upper")
	assert.Equal(t, []string{"str-upper", "str-lower"}, ids(results))
	assert.Equal(t, ranker.TierName, results[0].Tier)
	assert.Equal(t, ranker.TierDescription, results[1].Tier)
}

func TestSearchNameBeatsEarlierDescriptionMatch(t *testing.T) {
	c, err := catalog.New([]catalog.Category{
		{ID: "a", Title: "A", Entries: []catalog.MethodEntry{
			{ID: "first", Name: "first", Description: "mentions target"},
		}},
		{ID: "b", Title: "B", Entries: []catalog.MethodEntry{
			{ID: "second", Name: "target"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"second", "first"}, ids(New(c).Search("target")))
}

func TestSearchTierOrder(t *testing.T) {
	c, err := catalog.New([]catalog.Category{
		{ID: "cat", Title: "Cat", Entries: []catalog.MethodEntry{
			{ID: "d1", Name: "one", Description: "has zap"},
			{ID: "t1", Name: "two", Tags: []string{"zapper"}},
			{ID: "zap-id", Name: "three"},
			{ID: "n1", Name: "zap"},
			{ID: "t2", Name: "four", Tags: []string{"other", "ZAP"}, Description: "zap too"},
		}},
	})
	require.NoError(t, err)

	results := New(c).Search("Zap")
	assert.Equal(t, []string{"n1", "zap-id", "t1", "t2", "d1"}, ids(results))
}

func TestSearchEmptyQuery(t *testing.T) {
	exec := New(stringCatalog(t))
	for _, q := range []string{"", "   ", "\t\n"} {
		results := exec.Search(q)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
}

func TestSearchNoMatches(t *testing.T) {
	results := New(stringCatalog(t)).Search("zzz")
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchTrimsAndIgnoresCase(t *testing.T) {
	results := New(stringCatalog(t)).Search("  LOWER ")
	assert.Equal(t, []string{"str-lower"}, ids(results))
}

func TestSearchIsDeterministic(t *testing.T) {
	c, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	exec := New(c)

	for _, q := range []string{"e", "list", "mutate", "return"} {
		first := ids(exec.Search(q))
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, ids(exec.Search(q)), "query %q", q)
		}
	}
}

func TestSearchDoesNotTruncate(t *testing.T) {
	entries := make([]catalog.MethodEntry, 8)
	for i := range entries {
		entries[i] = catalog.MethodEntry{
			ID:          fmt.Sprintf("m-%d", i),
			Name:        fmt.Sprintf("method%d", i),
			Description: "shared keyword",
		}
	}
	c, err := catalog.New([]catalog.Category{{ID: "many", Title: "Many", Entries: entries}})
	require.NoError(t, err)
	exec := New(c)

	results := exec.Search("keyword")
	require.Len(t, results, 8)

	top5 := ids(results[:5])
	assert.Equal(t, []string{"m-0", "m-1", "m-2", "m-3", "m-4"}, top5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, top5, ids(exec.Search("keyword")[:5]))
	}
}

func TestSearchResultPointsIntoCategory(t *testing.T) {
	c, err := catalog.LoadEmbedded()
	require.NoError(t, err)

	for _, r := range New(c).Search("a") {
		require.GreaterOrEqual(t, r.EntryIndex, 0)
		require.Less(t, r.EntryIndex, len(r.Category.Entries))

		catID, ok := c.ResolveCategoryForEntry(r.Entry().ID)
		require.True(t, ok)
		assert.Equal(t, catID, r.Category.ID)
	}
}

func TestSearchResultEntryIsACopy(t *testing.T) {
	c, err := catalog.New([]catalog.Category{{
		ID:      "misc",
		Title:   "Misc",
		Entries: []catalog.MethodEntry{{ID: "a", Name: "alpha", Tags: []string{"first", "second"}}},
	}})
	require.NoError(t, err)

	results := New(c).Search("alpha")
	require.Len(t, results, 1)
	got := results[0].Entry()
	got.Tags[0] = "changed"

	stored, ok := c.FindByID("a")
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second"}, stored.Tags)
	assert.Equal(t, []string{"first", "second"}, results[0].Entry().Tags)
}

func TestNewResponse(t *testing.T) {
	results := New(stringCatalog(t)).Search("upper")
	resp := NewResponse("upper", results[:1], len(results))

	assert.Equal(t, "upper", resp.Query)
	assert.Equal(t, 2, resp.TotalHits)
	assert.Equal(t, 1, resp.Returned)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "str-upper", resp.Results[0].ID)
	assert.Equal(t, "string-methods", resp.Results[0].CategoryID)
	assert.Equal(t, "String Methods", resp.Results[0].CategoryTitle)
	assert.Equal(t, "name", resp.Results[0].MatchedOn)
}

func BenchmarkSearch(b *testing.B) {
	c, err := catalog.LoadEmbedded()
	require.NoError(b, err)
	exec := New(c)

	queries := []string{"upper", "list", "returns", "zzz"}
	for _, q := range queries {
		b.Run(q, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = exec.Search(q)
			}
		})
	}
}
