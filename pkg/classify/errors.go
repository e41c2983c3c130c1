package classify

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification.
var (
	// ErrEmptyFrame is returned when the frame has no bytes or does not decode.
	ErrEmptyFrame = errors.New("classify: empty frame")

	// ErrUnknownLabel is returned when a reply names none of the classes.
	ErrUnknownLabel = errors.New("classify: reply matches no class")

	// ErrModelUnavailable is returned when a model cannot be loaded.
	ErrModelUnavailable = errors.New("classify: model unavailable")

	// ErrNoAPIKey is returned when the vision classifier has no API key.
	ErrNoAPIKey = errors.New("classify: API key required")

	// ErrBackendUnsupported is returned when a classifier is not compiled in.
	ErrBackendUnsupported = errors.New("classify: backend not supported in this build")
)

// APIError represents an error response from a vision API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code (if provided).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("classify: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("classify: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}
