// Package executor runs free-text searches over a catalog and returns every
// match in relevance order. It never truncates; callers slice the result.
package executor

import (
	"log/slog"
	"slices"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/searcher/parser"
	"github.com/pydash/methodref/internal/searcher/ranker"
)

// SearchResult points at a matched entry inside its category rather than
// copying it. 0 <= EntryIndex < len(Category.Entries) always holds.
// Category refers to catalog storage and must not be modified.
type SearchResult struct {
	Category   *catalog.Category
	EntryIndex int
	Tier       ranker.Tier
}

// Entry returns a copy of the matched entry; its Tags may be modified
// freely.
func (r SearchResult) Entry() catalog.MethodEntry {
	e := r.Category.Entries[r.EntryIndex]
	e.Tags = slices.Clone(e.Tags)
	return e
}

type preparedCategory struct {
	category *catalog.Category
	fields   []ranker.Fields
}

// Executor searches one immutable catalog. It holds no mutable state after
// New and is safe for concurrent use.
type Executor struct {
	categories []preparedCategory
	logger     *slog.Logger
}

// New prepares the searchable fields of every entry in c.
func New(c *catalog.Catalog) *Executor {
	e := &Executor{
		categories: make([]preparedCategory, 0, c.Len()),
		logger:     slog.Default().With("component", "query-executor"),
	}
	c.Walk(func(cat *catalog.Category) bool {
		pc := preparedCategory{
			category: cat,
			fields:   make([]ranker.Fields, len(cat.Entries)),
		}
		for i, entry := range cat.Entries {
			pc.fields[i] = ranker.Prepare(entry)
		}
		e.categories = append(e.categories, pc)
		return true
	})
	return e
}

// Search parses query and executes it.
func (e *Executor) Search(query string) []SearchResult {
	return e.Execute(parser.Parse(query))
}

// Execute scans every entry in catalog order and returns all matches ordered
// by tier, with catalog order preserved inside each tier. An empty plan
// yields an empty, non-nil slice.
func (e *Executor) Execute(plan *parser.QueryPlan) []SearchResult {
	results := make([]SearchResult, 0)
	if plan.Empty() {
		return results
	}
	for _, pc := range e.categories {
		for i, f := range pc.fields {
			tier, ok := ranker.Match(f, plan.Term)
			if !ok {
				continue
			}
			results = append(results, SearchResult{
				Category:   pc.category,
				EntryIndex: i,
				Tier:       tier,
			})
		}
	}
	ranker.SortStable(results, func(r SearchResult) ranker.Tier { return r.Tier })
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"term", plan.Term,
		"results", len(results),
	)
	return results
}
