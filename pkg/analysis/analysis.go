// Package analysis implements the duplex channel between a streaming session and
// a remote frame-analysis service.
//
// A channel is opened asynchronously. Exactly one of Events.OnOpened or
// Events.OnFailed is delivered per Open call. After OnOpened, OnResult is
// delivered zero or more times in the order the service emitted the results,
// followed by at most one terminal OnClosed.
//
// Outbound messages are encoded frames, one per Send, with no acknowledgement.
// Inbound messages are JSON objects carrying a single label:
//
//	{"label": "confident"}
//
// Example usage:
//
//	dialer := analysis.NewDialer(analysis.WithLogger(logger))
//	conn := dialer.Open(ctx, "ws://localhost:8000/ws/analyze", analysis.Events{
//	    OnOpened: func() { ... },
//	    OnFailed: func(err error) { ... },
//	    OnResult: func(r analysis.Result) { fmt.Println(r.Label) },
//	    OnClosed: func(err error) { ... },
//	})
//	defer conn.Close()
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Result is one labeled classification received from the service.
type Result struct {
	// Label is the free-form classification (e.g., "confident").
	Label string `json:"label"`

	// Seq is the arrival order on this connection, starting at 1.
	Seq uint64 `json:"-"`

	// ReceivedAt is when the message was read.
	ReceivedAt time.Time `json:"-"`
}

// ParseResult decodes one inbound message.
func ParseResult(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	r.Label = strings.TrimSpace(r.Label)
	if r.Label == "" {
		return Result{}, ErrNoLabel
	}
	return r, nil
}

// Events are the lifecycle callbacks of one channel. Nil callbacks are skipped.
//
// Callbacks are invoked from the channel's own goroutines, one at a time and
// never from inside Open. They must not call Conn.Close.
type Events struct {
	// OnOpened is delivered once the connection is established.
	OnOpened func()

	// OnFailed is delivered instead of OnOpened when the connection cannot be
	// established. The error wraps ErrOpenFailed.
	OnFailed func(err error)

	// OnResult is delivered for every labeled message after OnOpened.
	OnResult func(r Result)

	// OnClosed is delivered at most once after OnOpened. err is nil for a
	// normal close.
	OnClosed func(err error)
}

// Conn is one analysis channel.
type Conn interface {
	// Send enqueues one encoded frame. It returns ErrNotOpen before OnOpened
	// or after the channel closed.
	Send(payload []byte) error

	// Close terminates the channel. It is idempotent, and no OnResult is
	// delivered after it returns.
	Close()
}

// Dialer opens analysis channels.
type Dialer interface {
	// Open starts connecting to endpoint and returns immediately.
	// The outcome is reported through ev.
	Open(ctx context.Context, endpoint string, ev Events) Conn
}
