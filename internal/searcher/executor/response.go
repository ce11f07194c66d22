package executor

import "github.com/pydash/methodref/internal/catalog"

// Hit is the wire form of a SearchResult.
type Hit struct {
	catalog.MethodEntry
	CategoryID    string `json:"category_id"`
	CategoryTitle string `json:"category_title"`
	EntryIndex    int    `json:"entry_index"`
	MatchedOn     string `json:"matched_on"`
}

// Response is the body returned for a search request. TotalHits counts every
// match; Results may hold fewer when the caller applied a limit.
type Response struct {
	Query       string   `json:"query"`
	TotalHits   int      `json:"total_hits"`
	Returned    int      `json:"returned"`
	Results     []Hit    `json:"results"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// NewHit converts r to its wire form.
func NewHit(r SearchResult) Hit {
	return Hit{
		MethodEntry:   r.Entry(),
		CategoryID:    r.Category.ID,
		CategoryTitle: r.Category.Title,
		EntryIndex:    r.EntryIndex,
		MatchedOn:     r.Tier.String(),
	}
}

// NewResponse renders results, which the caller may already have sliced,
// against the untruncated match count.
func NewResponse(query string, results []SearchResult, totalHits int) *Response {
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = NewHit(r)
	}
	return &Response{
		Query:     query,
		TotalHits: totalHits,
		Returned:  len(hits),
		Results:   hits,
	}
}
