package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/pydash/methodref/pkg/errors"
)

// maxTopN caps the ?top= parameter.
const maxTopN = 100

// Handler serves the aggregate over HTTP.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats handles GET /api/v1/analytics[?top=N]. top sizes the ranked query,
// zero-result and missed-id lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	n := DefaultTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxTopN {
			status, body := apperrors.Render(apperrors.Newf(apperrors.ErrInvalidInput, 0,
				"top must be between 1 and %d", maxTopN))
			h.write(w, status, body)
			return
		}
		n = v
	}
	w.Header().Set("Cache-Control", "no-store")
	h.write(w, http.StatusOK, h.aggregator.StatsTop(n))
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
