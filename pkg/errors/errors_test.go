package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"entry not found", ErrEntryNotFound, http.StatusNotFound},
		{"wrapped category not found", fmt.Errorf("lookup: %w", ErrCategoryNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"invalid catalog", ErrInvalidCatalog, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error overrides sentinel", New(ErrEntryNotFound, http.StatusGone, "retired"), http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %q is not a number", "abc")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, `invalid input: limit "abc" is not a number`, err.Error())
}

func TestNewInfersStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, New(ErrEntryNotFound, 0, "gone").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, New(ErrUnavailable, 0, "caching is disabled").StatusCode)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   Body
	}{
		{
			name:       "app error shows its message",
			err:        Newf(ErrEntryNotFound, 0, "no method with id %q", "x"),
			wantStatus: http.StatusNotFound,
			wantBody:   Body{Error: `no method with id "x"`, Code: "entry_not_found"},
		},
		{
			name:       "wrapped sentinel keeps its text",
			err:        fmt.Errorf("parsing limit: %w", ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "parsing limit: invalid input", Code: "invalid_input"},
		},
		{
			name:       "internal errors are hidden",
			err:        errors.New("dial tcp 10.0.0.3:5432: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   Body{Error: "Internal Server Error", Code: "internal"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Render(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}
