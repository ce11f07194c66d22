package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/pydash/methodref/pkg/errors"
)

// Chain wraps h so that the first middleware is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// writeError renders err with the same envelope the API handlers use.
func writeError(w http.ResponseWriter, err error) {
	status, body := apperrors.Render(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
