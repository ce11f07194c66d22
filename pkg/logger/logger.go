// Package logger configures the process-wide slog logger and carries
// request-scoped attributes through contexts. Records logged with a context
// (InfoContext and friends) pick up the request id automatically.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

type contextKey struct{}

// level is shared by every logger built here so LevelHandler can change
// verbosity without a restart.
var level = new(slog.LevelVar)

// Setup installs the default logger writing to stdout.
func Setup(lvl, format string) {
	slog.SetDefault(New(os.Stdout, lvl, format))
}

// New builds a logger for the given level and format ("json" or "text").
// It also sets the shared level.
func New(w io.Writer, lvl, format string) *slog.Logger {
	level.Set(parseLevel(lvl))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level.Level() <= slog.LevelDebug,
	}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(contextHandler{h})
}

// contextHandler adds request-scoped attributes from the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestID returns the request id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(contextKey{}).(string)
	return requestID
}

// FromContext returns the default logger bound to ctx's request id, for
// call sites that log without passing ctx.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// Level reports the current shared level.
func Level() slog.Level { return level.Level() }

// LevelHandler serves the shared level: GET reports it, PUT ?level=debug
// changes it.
func LevelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPut:
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(r.URL.Query().Get("level"))); err != nil {
				http.Error(w, "level must be one of debug, info, warn, error", http.StatusBadRequest)
				return
			}
			prev := level.Level()
			level.Set(lvl)
			slog.Info("log level changed", "from", prev, "to", lvl)
		default:
			w.Header().Set("Allow", "GET, PUT")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"level": level.Level().String()})
	}
}

// parseLevel accepts slog level names case-insensitively, defaulting to
// info for anything it does not recognise.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
