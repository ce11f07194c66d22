// Package store reads and writes catalog definitions in PostgreSQL. The
// service reads the catalog once at startup; writes happen only through the
// refctl seed command.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pydash/methodref/internal/catalog"
	apperrors "github.com/pydash/methodref/pkg/errors"
	"github.com/pydash/methodref/pkg/postgres"
)

// Schema creates the tables the Store relies on.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
    id       TEXT PRIMARY KEY,
    title    TEXT NOT NULL,
    position INT  NOT NULL
);
CREATE TABLE IF NOT EXISTS method_entries (
    id          TEXT PRIMARY KEY,
    category_id TEXT NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    example     TEXT NOT NULL DEFAULT '',
    position    INT  NOT NULL
);
CREATE TABLE IF NOT EXISTS method_entry_tags (
    entry_id TEXT NOT NULL REFERENCES method_entries (id) ON DELETE CASCADE,
    tag      TEXT NOT NULL,
    position INT  NOT NULL,
    PRIMARY KEY (entry_id, position)
);`

// Store loads catalog definitions from PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store backed by db.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog-store"),
	}
}

// EnsureSchema creates the catalog tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Load reads every category with its entries and tags, ordered by their
// stored positions. The result is unvalidated; pass it to catalog.New.
// The three reads share one snapshot so a concurrent seed cannot be observed
// half applied.
func (s *Store) Load(ctx context.Context) ([]catalog.Category, error) {
	var categories []catalog.Category
	err := s.db.InSnapshot(ctx, func(q postgres.Querier) error {
		var (
			index map[string]int
			refs  map[string]entryRef
			err   error
		)
		if categories, index, err = loadCategories(ctx, q); err != nil {
			return err
		}
		if refs, err = loadEntries(ctx, q, categories, index); err != nil {
			return err
		}
		return loadTags(ctx, q, categories, refs)
	})
	if err != nil {
		if postgres.HasCode(err, postgres.CodeUndefinedTable) {
			return nil, fmt.Errorf("catalog tables missing, run refctl seed first: %w", err)
		}
		return nil, err
	}

	var entries int
	for _, c := range categories {
		entries += len(c.Entries)
	}
	s.logger.Info("catalog loaded from postgres",
		"categories", len(categories),
		"entries", entries,
	)
	return categories, nil
}

func loadCategories(ctx context.Context, q postgres.Querier) ([]catalog.Category, map[string]int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, title FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []catalog.Category
	index := make(map[string]int)
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, nil, fmt.Errorf("scanning category row: %w", err)
		}
		index[c.ID] = len(categories)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating categories: %w", err)
	}
	return categories, index, nil
}

type entryRef struct {
	category int
	entry    int
}

func loadEntries(ctx context.Context, q postgres.Querier, categories []catalog.Category, index map[string]int) (map[string]entryRef, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT e.id, e.category_id, e.name, e.description, e.example
		 FROM method_entries e
		 JOIN categories c ON c.id = e.category_id
		 ORDER BY c.position, c.id, e.position, e.id`)
	if err != nil {
		return nil, fmt.Errorf("querying method entries: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]entryRef)
	for rows.Next() {
		var (
			e          catalog.MethodEntry
			categoryID string
		)
		if err := rows.Scan(&e.ID, &categoryID, &e.Name, &e.Description, &e.Example); err != nil {
			return nil, fmt.Errorf("scanning method entry row: %w", err)
		}
		ci, ok := index[categoryID]
		if !ok {
			return nil, fmt.Errorf("entry %q references unknown category %q", e.ID, categoryID)
		}
		refs[e.ID] = entryRef{category: ci, entry: len(categories[ci].Entries)}
		categories[ci].Entries = append(categories[ci].Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating method entries: %w", err)
	}
	return refs, nil
}

func loadTags(ctx context.Context, q postgres.Querier, categories []catalog.Category, refs map[string]entryRef) error {
	rows, err := q.QueryContext(ctx,
		`SELECT entry_id, tag FROM method_entry_tags ORDER BY entry_id, position`)
	if err != nil {
		return fmt.Errorf("querying entry tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID, tag string
		if err := rows.Scan(&entryID, &tag); err != nil {
			return fmt.Errorf("scanning entry tag row: %w", err)
		}
		ref, ok := refs[entryID]
		if !ok {
			continue
		}
		e := &categories[ref.category].Entries[ref.entry]
		e.Tags = append(e.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating entry tags: %w", err)
	}
	return nil
}

// Seed replaces the stored catalog with c in a single transaction. Entries
// and tags are bulk-loaded with COPY.
func (s *Store) Seed(ctx context.Context, c *catalog.Catalog) error {
	categories := c.AllCategories()
	var catRows, entryRows, tagRows [][]any
	for ci, cat := range categories {
		catRows = append(catRows, []any{cat.ID, cat.Title, ci})
		for ei, e := range cat.Entries {
			entryRows = append(entryRows, []any{e.ID, cat.ID, e.Name, e.Description, e.Example, ei})
			for ti, tag := range e.Tags {
				tagRows = append(tagRows, []any{e.ID, tag, ti})
			}
		}
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
			return fmt.Errorf("clearing categories: %w", err)
		}
		if err := postgres.CopyIn(ctx, tx, "categories",
			[]string{"id", "title", "position"}, catRows); err != nil {
			return err
		}
		if err := postgres.CopyIn(ctx, tx, "method_entries",
			[]string{"id", "category_id", "name", "description", "example", "position"}, entryRows); err != nil {
			return err
		}
		return postgres.CopyIn(ctx, tx, "method_entry_tags",
			[]string{"entry_id", "tag", "position"}, tagRows)
	})
	if postgres.HasCode(err, postgres.CodeUniqueViolation) {
		return fmt.Errorf("seeding catalog: %w: %v", apperrors.ErrInvalidCatalog, err)
	}
	if err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}
	s.logger.Info("catalog seeded",
		"categories", len(catRows),
		"entries", len(entryRows),
		"tags", len(tagRows),
	)
	return nil
}
