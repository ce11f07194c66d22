// Package errors defines the sentinel errors shared across the services, an
// AppError that carries a client-facing message and status, and Render,
// which turns any error into the JSON body handlers send.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEntryNotFound    = errors.New("method entry not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidCatalog   = errors.New("invalid catalog")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnavailable      = errors.New("feature unavailable")
	ErrTimeout          = errors.New("operation timed out")
	ErrInternal         = errors.New("internal error")
)

// kinds maps each sentinel to its response status and stable code. Order
// matters: the first sentinel err matches wins.
var kinds = []struct {
	sentinel error
	status   int
	code     string
}{
	{ErrEntryNotFound, http.StatusNotFound, "entry_not_found"},
	{ErrCategoryNotFound, http.StatusNotFound, "category_not_found"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{ErrTimeout, http.StatusServiceUnavailable, "timeout"},
	{ErrInvalidCatalog, http.StatusInternalServerError, "invalid_catalog"},
}

// AppError is an error whose Message is safe to show to clients.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError. A zero statusCode takes the sentinel's status.
func New(sentinel error, statusCode int, message string) *AppError {
	if statusCode == 0 {
		statusCode = HTTPStatusCode(sentinel)
	}
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps err to a response status. An AppError's explicit code
// wins over the sentinel mapping.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns the stable machine-readable code for err, "internal" when no
// sentinel matches.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	return "internal"
}

// Body is the JSON error envelope every handler writes.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Render returns the status and body for err. AppError messages are shown
// as is; other 5xx errors are replaced by a generic message so internals do
// not leak.
func Render(err error) (int, Body) {
	status := HTTPStatusCode(err)
	body := Body{Error: err.Error(), Code: Code(err)}
	var appErr *AppError
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
	} else if status >= http.StatusInternalServerError {
		body.Error = http.StatusText(status)
	}
	return status, body
}
