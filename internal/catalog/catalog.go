// Package catalog holds the immutable method reference catalog: documented
// methods (entries) grouped into ordered categories. A Catalog is validated
// once by New and is read-only afterwards, so it is safe to share between any
// number of concurrent readers without locking.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/pydash/methodref/pkg/errors"
)

var (
	ErrDuplicateEntryID    = errors.New("duplicate entry id")
	ErrDuplicateCategoryID = errors.New("duplicate category id")
	ErrMissingField        = errors.New("missing required field")
)

// MethodEntry documents a single method or function.
type MethodEntry struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Example     string   `json:"example,omitempty" yaml:"example,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Category is a titled, ordered group of entries. Entry order is the
// default display order.
type Category struct {
	ID      string        `json:"id" yaml:"id"`
	Title   string        `json:"title" yaml:"title"`
	Entries []MethodEntry `json:"entries" yaml:"entries"`
}

type position struct {
	category int
	entry    int
}

// Catalog is the full set of categories. The zero value is an empty catalog.
type Catalog struct {
	categories []Category
	byCategory map[string]int
	byEntry    map[string]position
	entryCount int
}

// ValidationError lists every integrity problem found while building a
// catalog. It matches apperrors.ErrInvalidCatalog and each individual
// problem's sentinel with errors.Is.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Error())
	}
	return fmt.Sprintf("%s: %s", apperrors.ErrInvalidCatalog, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{apperrors.ErrInvalidCatalog}, e.Problems...)
}

// New validates categories and returns an immutable Catalog built from a deep
// copy of them. It fails if any category or entry id is repeated anywhere in
// the input, or if a required field is blank; no partially built catalog is
// ever returned.
func New(categories []Category) (*Catalog, error) {
	c := &Catalog{
		categories: make([]Category, 0, len(categories)),
		byCategory: make(map[string]int, len(categories)),
		byEntry:    make(map[string]position),
	}

	var problems []error
	entryOwner := make(map[string]string)

	for ci, cat := range categories {
		if strings.TrimSpace(cat.ID) == "" {
			problems = append(problems, fmt.Errorf("%w: category #%d has no id", ErrMissingField, ci))
		} else if _, dup := c.byCategory[cat.ID]; dup {
			problems = append(problems, fmt.Errorf("%w: %q", ErrDuplicateCategoryID, cat.ID))
		} else {
			c.byCategory[cat.ID] = ci
		}
		if strings.TrimSpace(cat.Title) == "" {
			problems = append(problems, fmt.Errorf("%w: category %q has no title", ErrMissingField, cat.ID))
		}

		for ei, entry := range cat.Entries {
			switch {
			case strings.TrimSpace(entry.ID) == "":
				problems = append(problems, fmt.Errorf("%w: entry #%d in category %q has no id", ErrMissingField, ei, cat.ID))
			case c.hasEntry(entry.ID):
				problems = append(problems, fmt.Errorf("%w: %q in categories %q and %q",
					ErrDuplicateEntryID, entry.ID, entryOwner[entry.ID], cat.ID))
			default:
				entryOwner[entry.ID] = cat.ID
				c.byEntry[entry.ID] = position{category: ci, entry: ei}
			}
			if strings.TrimSpace(entry.Name) == "" {
				problems = append(problems, fmt.Errorf("%w: entry %q has no name", ErrMissingField, entry.ID))
			}
			for _, tag := range entry.Tags {
				if strings.TrimSpace(tag) == "" {
					problems = append(problems, fmt.Errorf("%w: entry %q has a blank tag", ErrMissingField, entry.ID))
					break
				}
			}
		}
		c.categories = append(c.categories, cloneCategory(cat))
		c.entryCount += len(cat.Entries)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return c, nil
}

// MustNew is like New but panics on an invalid catalog. It is intended for
// catalogs compiled into the binary.
func MustNew(categories []Category) *Catalog {
	c, err := New(categories)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) hasEntry(id string) bool {
	_, ok := c.byEntry[id]
	return ok
}

// AllCategories returns every category in declaration order. The result is a
// copy; modifying it does not affect the catalog.
func (c *Catalog) AllCategories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cloneCategory(cat)
	}
	return out
}

// Len returns the number of categories.
func (c *Catalog) Len() int { return len(c.categories) }

// EntryCount returns the number of entries across all categories.
func (c *Catalog) EntryCount() int { return c.entryCount }

func (c *Catalog) categoryAt(i int) *Category {
	return &c.categories[i]
}

// Walk calls fn for each category in declaration order with a pointer into
// the catalog's own storage. fn must not modify the category. Walk stops
// early when fn returns false.
func (c *Catalog) Walk(fn func(cat *Category) bool) {
	for i := range c.categories {
		if !fn(c.categoryAt(i)) {
			return
		}
	}
}

func cloneCategory(cat Category) Category {
	entries := make([]MethodEntry, len(cat.Entries))
	for i, e := range cat.Entries {
		entries[i] = cloneEntry(e)
	}
	cat.Entries = entries
	return cat
}
