// Package aggregator persists periodic snapshots of aggregated analytics
// stats to PostgreSQL and serves them back for trend dashboards.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pydash/methodref/internal/analytics"
	"github.com/pydash/methodref/pkg/postgres"
)

// Schema creates the snapshot table.
const Schema = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx
    ON analytics_snapshots (captured_at DESC);`

// Snapshot is one persisted aggregate.
type Snapshot struct {
	ID         int64                     `json:"id"`
	CapturedAt time.Time                 `json:"captured_at"`
	Stats      analytics.AggregatedStats `json:"stats"`
}

// StatsSource yields the stats to snapshot.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

// Store reads and writes analytics snapshots.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "snapshot-store"),
		now:    time.Now,
	}
}

// EnsureSchema creates the snapshot table and index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}
	return nil
}

// Save writes stats as a new snapshot and returns it with its id.
func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) (Snapshot, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	snap := Snapshot{Stats: stats}
	err = s.db.DB.QueryRowContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)
		 RETURNING id, captured_at`,
		data, s.now().UTC(),
	).Scan(&snap.ID, &snap.CapturedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("inserting snapshot: %w", err)
	}
	return snap, nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	snaps, err := s.List(ctx, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

// List returns up to limit snapshots, newest first. Rows whose JSON no
// longer decodes are logged and left out.
func (s *Store) List(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, captured_at, data FROM analytics_snapshots
		 ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0, limit)
	for rows.Next() {
		var (
			snap Snapshot
			data []byte
		)
		if err := rows.Scan(&snap.ID, &snap.CapturedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", snap.ID, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snaps, nil
}

// Prune deletes snapshots captured before cutoff and returns how many went.
// The newest snapshot is always kept.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM analytics_snapshots
		 WHERE captured_at < $1
		   AND id <> (SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1)`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Run snapshots src every interval until ctx is cancelled, then writes a
// final snapshot. After the first save, ticks where nothing was tracked
// since the previous save are skipped. A positive retention prunes older
// snapshots after each save. Failures are logged; Run always returns nil.
func (s *Store) Run(ctx context.Context, src StatsSource, interval, retention time.Duration) error {
	s.logger.Info("periodic snapshots started", "interval", interval, "retention", retention)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *analytics.AggregatedStats
	save := func(ctx context.Context, reason string) {
		stats := src.Stats()
		if !changed(last, stats) {
			return
		}
		snap, err := s.Save(ctx, stats)
		if err != nil {
			s.logger.Error("snapshot failed", "reason", reason, "error", err)
			return
		}
		last = &snap.Stats
		s.logger.Info("snapshot saved",
			"reason", reason,
			"id", snap.ID,
			"total_searches", stats.TotalSearches,
			"total_lookups", stats.TotalLookups,
		)
		if retention <= 0 {
			return
		}
		pruned, err := s.Prune(ctx, s.now().Add(-retention))
		switch {
		case err != nil:
			s.logger.Warn("snapshot pruning failed", "error", err)
		case pruned > 0:
			s.logger.Info("old snapshots pruned", "count", pruned)
		}
	}

	for {
		select {
		case <-ticker.C:
			save(ctx, "interval")
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			save(shutdownCtx, "shutdown")
			cancel()
			return nil
		}
	}
}

// changed reports whether cur differs from the last saved stats.
func changed(prev *analytics.AggregatedStats, cur analytics.AggregatedStats) bool {
	if prev == nil {
		return true
	}
	return cur.TotalSearches != prev.TotalSearches || cur.TotalLookups != prev.TotalLookups
}
