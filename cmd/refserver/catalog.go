package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/catalog/store"
	"github.com/pydash/methodref/pkg/config"
	"github.com/pydash/methodref/pkg/postgres"
	"github.com/pydash/methodref/pkg/resilience"
)

// loadCatalog builds the catalog from the configured source. Any integrity
// problem is returned as an error; the caller exits.
func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	switch cfg.Catalog.Source {
	case config.SourceEmbedded:
		return catalog.LoadEmbedded()
	case config.SourceFile:
		return catalog.LoadFile(cfg.Catalog.Path)
	case config.SourcePostgres:
		return loadFromPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

func loadFromPostgres(ctx context.Context, pgCfg config.PostgresConfig) (*catalog.Catalog, error) {
	db, err := resilience.Do(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, func(ctx context.Context) (*postgres.Client, error) {
		return postgres.New(ctx, pgCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to catalog database: %w", err)
	}
	// The catalog is read once; the connection is not needed afterwards.
	defer db.Close()

	categories, err := resilience.Timeout(ctx, 30*time.Second, "load-catalog", store.New(db).Load)
	if err != nil {
		return nil, err
	}
	slog.Info("catalog rows read", "source", config.SourcePostgres, "categories", len(categories))
	return catalog.New(categories)
}
