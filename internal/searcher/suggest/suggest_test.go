package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/pkg/config"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Category{
		{ID: "string-methods", Title: "String Methods", Entries: []catalog.MethodEntry{
			{ID: "str-upper", Name: "upper", Tags: []string{"case"}},
			{ID: "str-lower", Name: "lower", Tags: []string{"case"}},
			{ID: "str-splitlines", Name: "splitlines"},
		}},
		{ID: "list-methods", Title: "List Methods", Entries: []catalog.MethodEntry{
			{ID: "list-append", Name: "append", Tags: []string{"mutate"}},
		}},
	})
	require.NoError(t, err)
	return c
}

func defaultCfg() config.SuggestConfig {
	return config.SuggestConfig{Enabled: true, Threshold: 0.8, MaxSuggestions: 3}
}

func TestVocabulary(t *testing.T) {
	s := New(testCatalog(t), defaultCfg())
	// upper, str, lower, case, splitlines, append, list, mutate
	assert.Equal(t, 8, s.VocabularySize())
}

func TestSuggestTypo(t *testing.T) {
	s := New(testCatalog(t), defaultCfg())

	words := s.Words("apend")
	require.NotEmpty(t, words)
	assert.Equal(t, "append", words[0])

	words = s.Words("  UPPR ")
	require.NotEmpty(t, words)
	assert.Equal(t, "upper", words[0])
}

func TestSuggestOrderingIsDeterministic(t *testing.T) {
	s := New(testCatalog(t), config.SuggestConfig{Threshold: 0, MaxSuggestions: 100})

	first := s.Suggest("lst")
	require.Len(t, first, s.VocabularySize())
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if prev.Similarity == cur.Similarity {
			assert.Less(t, prev.Word, cur.Word)
		} else {
			assert.Greater(t, prev.Similarity, cur.Similarity)
		}
	}
	assert.Equal(t, first, s.Suggest("lst"))
}

func TestSuggestRespectsMax(t *testing.T) {
	s := New(testCatalog(t), config.SuggestConfig{Threshold: 0, MaxSuggestions: 2})
	assert.Len(t, s.Suggest("x"), 2)
}

func TestSuggestNothing(t *testing.T) {
	s := New(testCatalog(t), defaultCfg())

	assert.Nil(t, s.Suggest(""))
	assert.Nil(t, s.Suggest("   "))
	assert.Empty(t, s.Words("qqqqqqqqqq"))

	disabled := New(testCatalog(t), config.SuggestConfig{Threshold: 0.8, MaxSuggestions: 0})
	assert.Nil(t, disabled.Suggest("apend"))
}

func TestSuggestSkipsExactWord(t *testing.T) {
	s := New(testCatalog(t), config.SuggestConfig{Threshold: 0, MaxSuggestions: 100})
	for _, sg := range s.Suggest("upper") {
		assert.NotEqual(t, "upper", sg.Word)
	}
}
