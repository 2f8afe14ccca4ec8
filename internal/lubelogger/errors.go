// Package lubelogger provides a client for the LubeLogger vehicle
// maintenance API. This package centralizes all remote API interactions
// for the application.
package lubelogger

import (
	"fmt"
	"time"
)

// AuthError represents an authentication failure against the remote
// service. After one failed re-authentication retry it is terminal for
// the refresh cycle that observed it.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("lubelogger auth failed: %s (status: %d)", e.Message, e.StatusCode)
}

// NetworkError represents a transport-level failure for a single call,
// including timeouts and unexpected server errors. Isolated per call.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("lubelogger request failed: %s (endpoint: %s)", e.Err, e.Endpoint)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError represents a response body that could not be
// decoded into the expected shape. Reported distinctly from "no data"
// so callers never mistake parse failures for empty categories.
type MalformedResponseError struct {
	Endpoint string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("lubelogger malformed response: %s (endpoint: %s)", e.Err, e.Endpoint)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NotFoundError represents a 404 from an endpoint. Callers treat this as
// "category empty" for the vehicle, not as a failure.
type NotFoundError struct {
	Endpoint string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lubelogger endpoint not found: %s", e.Endpoint)
}

// RateLimitError represents a local rate limiter rejection.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("lubelogger rate limit exceeded, retry after %v", e.RetryAfter)
}
