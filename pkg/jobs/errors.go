package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrInvalidRequest is returned when a request fails validation before it is sent.
	ErrInvalidRequest = errors.New("jobs: invalid request")

	// ErrNoAudio is returned when a speech result carries no audio reference.
	ErrNoAudio = errors.New("jobs: no audio reference")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("jobs: API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for 429 and 5xx.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsNotFound returns true for 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}
