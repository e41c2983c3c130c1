package analysis

import (
	"errors"
	"fmt"
)

// Sentinel errors for analysis channel operations.
var (
	// ErrNotOpen is returned by Send before Opened or after Closed/Failed.
	ErrNotOpen = errors.New("analysis: channel not open")

	// ErrOpenFailed wraps the cause delivered with a Failed event.
	ErrOpenFailed = errors.New("analysis: channel open failed")

	// ErrNoLabel is returned when an inbound message carries no label.
	ErrNoLabel = errors.New("analysis: message has no label")

	// ErrNoEndpoint is returned when Open is called without an endpoint.
	ErrNoEndpoint = errors.New("analysis: endpoint required")
)

func wrapOpenFailed(cause error) error {
	return fmt.Errorf("%w: %v", ErrOpenFailed, cause)
}
