package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/pydash/methodref/pkg/errors"
)

const (
	defaultListLimit = 24
	maxListLimit     = 500
)

// Lister reads persisted snapshots. *Store implements it.
type Lister interface {
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

// SnapshotsHandler serves GET /api/v1/analytics/snapshots[?limit=N], the
// newest N snapshots for trend charts.
func SnapshotsHandler(l Lister) http.HandlerFunc {
	logger := slog.Default().With("component", "snapshot-handler")
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxListLimit {
				status, body := apperrors.Render(apperrors.Newf(apperrors.ErrInvalidInput, 0,
					"limit must be between 1 and %d", maxListLimit))
				writeJSON(w, logger, status, body)
				return
			}
			limit = n
		}

		snaps, err := l.List(r.Context(), limit)
		if err != nil {
			logger.Error("listing snapshots", "error", err)
			status, body := apperrors.Render(err)
			writeJSON(w, logger, status, body)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]any{"snapshots": snaps, "count": len(snaps)})
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
