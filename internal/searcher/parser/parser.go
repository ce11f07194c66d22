// Package parser normalizes free-text search queries.
package parser

import (
	"strings"
	"unicode/utf8"
)

// QueryPlan is a normalized query. Term is matched as a single substring;
// inner whitespace is kept so "to upper" only matches text containing that
// exact phrase.
type QueryPlan struct {
	Term     string
	RawQuery string
}

// Parse trims surrounding whitespace and lower-cases the query.
func Parse(query string) *QueryPlan {
	return &QueryPlan{
		Term:     strings.ToLower(strings.TrimSpace(query)),
		RawQuery: query,
	}
}

// Empty reports whether the query has nothing to match. Empty queries match
// no entries.
func (p *QueryPlan) Empty() bool {
	return p.Term == ""
}

// Length returns the normalized term length in runes.
func (p *QueryPlan) Length() int {
	return utf8.RuneCountInString(p.Term)
}
