// Package gcal provides the wire layer for the Google Calendar events API:
// an HTTP client with retry and backoff, endpoint resolution, status
// classification, OAuth flows, and the authentication session.
package gcal

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gcal.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gcal: bad request")
	ErrUnauthorized = errors.New("gcal: unauthorized")
	ErrForbidden    = errors.New("gcal: forbidden")
	ErrNotFound     = errors.New("gcal: not found")
	ErrConflict     = errors.New("gcal: conflict")
	ErrGone         = errors.New("gcal: resource gone")
	ErrThrottled    = errors.New("gcal: throttled")
	ErrServerError  = errors.New("gcal: server error")
	ErrUnexpected   = errors.New("gcal: unexpected status")
)

// ErrNotLoggedIn is returned when no usable OAuth token is available.
var ErrNotLoggedIn = errors.New("gcal: not logged in")

// APIError wraps a sentinel error with the HTTP status code and the error
// message the API returned in its JSON error body.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string // first errors[].reason from the body, e.g. "notFound"
	Err        error  // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gcal: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gcal: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, or 0 if err did not
// come from an API response.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpected
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isIdempotent reports whether method may be replayed after a failure.
// POST creates a new event on every call, so it is sent exactly once.
func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
