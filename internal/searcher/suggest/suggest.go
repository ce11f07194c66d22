// Package suggest proposes catalog words close to a query that matched
// nothing, using Jaro-Winkler similarity.
package suggest

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/searcher/tokenizer"
	"github.com/pydash/methodref/pkg/config"
)

// Suggestion is a vocabulary word and its similarity to the query.
type Suggestion struct {
	Word       string  `json:"word"`
	Similarity float32 `json:"similarity"`
}

// Suggester holds the catalog vocabulary: entry names, ids and tags split
// into words. It is read-only after New.
type Suggester struct {
	vocabulary []string
	threshold  float32
	max        int
	logger     *slog.Logger
}

// New builds the vocabulary of c.
func New(c *catalog.Catalog, cfg config.SuggestConfig) *Suggester {
	seen := make(map[string]struct{})
	var vocabulary []string
	add := func(text string) {
		for _, term := range tokenizer.Terms(text) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			vocabulary = append(vocabulary, term)
		}
	}
	c.Walk(func(cat *catalog.Category) bool {
		for _, e := range cat.Entries {
			add(e.Name)
			add(e.ID)
			for _, tag := range e.Tags {
				add(tag)
			}
		}
		return true
	})
	sort.Strings(vocabulary)

	s := &Suggester{
		vocabulary: vocabulary,
		threshold:  cfg.Threshold,
		max:        cfg.MaxSuggestions,
		logger:     slog.Default().With("component", "suggester"),
	}
	s.logger.Debug("suggestion vocabulary built", "words", len(vocabulary))
	return s
}

// VocabularySize returns the number of distinct words.
func (s *Suggester) VocabularySize() int {
	return len(s.vocabulary)
}

// Suggest returns up to the configured maximum of vocabulary words whose
// similarity to query is at least the threshold, most similar first and
// alphabetical among equals.
func (s *Suggester) Suggest(query string) []Suggestion {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" || s.max <= 0 {
		return nil
	}

	var out []Suggestion
	for _, word := range s.vocabulary {
		if word == term {
			continue
		}
		score, err := edlib.StringsSimilarity(term, word, edlib.JaroWinkler)
		if err != nil {
			s.logger.Warn("similarity failed", "word", word, "error", err)
			continue
		}
		if score < s.threshold {
			continue
		}
		out = append(out, Suggestion{Word: word, Similarity: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > s.max {
		out = out[:s.max]
	}
	return out
}

// Words returns just the words of Suggest(query).
func (s *Suggester) Words(query string) []string {
	suggestions := s.Suggest(query)
	if len(suggestions) == 0 {
		return nil
	}
	words := make([]string, len(suggestions))
	for i, sg := range suggestions {
		words[i] = sg.Word
	}
	return words
}
