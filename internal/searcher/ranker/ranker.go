// Package ranker assigns relevance tiers to catalog entries. An entry's tier
// is decided by the highest-priority field containing the query term; fields
// are never combined into a score.
package ranker

import (
	"sort"
	"strings"

	"github.com/pydash/methodref/internal/catalog"
)

// Tier orders matches by the field that matched. Lower tiers rank first.
type Tier int

const (
	TierName Tier = iota
	TierID
	TierTags
	TierDescription
)

func (t Tier) String() string {
	switch t {
	case TierName:
		return "name"
	case TierID:
		return "id"
	case TierTags:
		return "tags"
	case TierDescription:
		return "description"
	default:
		return "unknown"
	}
}

// Fields is an entry's searchable text, lower-cased once up front.
type Fields struct {
	Name        string
	ID          string
	Tags        []string
	Description string
}

// Prepare lower-cases the searchable fields of e.
func Prepare(e catalog.MethodEntry) Fields {
	tags := make([]string, len(e.Tags))
	for i, tag := range e.Tags {
		tags[i] = strings.ToLower(tag)
	}
	return Fields{
		Name:        strings.ToLower(e.Name),
		ID:          strings.ToLower(e.ID),
		Tags:        tags,
		Description: strings.ToLower(e.Description),
	}
}

// Match returns the tier of the first field, in priority order, that contains
// term. term must already be lower-cased. The second result is false when no
// field matches or term is empty.
func Match(f Fields, term string) (Tier, bool) {
	if term == "" {
		return 0, false
	}
	if strings.Contains(f.Name, term) {
		return TierName, true
	}
	if strings.Contains(f.ID, term) {
		return TierID, true
	}
	for _, tag := range f.Tags {
		if strings.Contains(tag, term) {
			return TierTags, true
		}
	}
	if strings.Contains(f.Description, term) {
		return TierDescription, true
	}
	return 0, false
}

// SortStable orders items by tier, keeping the existing relative order of
// items within the same tier.
func SortStable[T any](items []T, tier func(T) Tier) {
	sort.SliceStable(items, func(i, j int) bool {
		return tier(items[i]) < tier(items[j])
	})
}
