package session

import (
	"errors"

	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
)

// Start-time failures surfaced to the caller.
var (
	// ErrDeviceUnavailable is returned by Start when the camera cannot be acquired.
	ErrDeviceUnavailable = capture.ErrDeviceUnavailable

	// ErrChannelOpenFailed is returned by Start when the analysis channel fails to open.
	ErrChannelOpenFailed = analysis.ErrOpenFailed
)

var (
	// ErrAlreadyStarted is returned by Start while a previous attempt is in progress.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrStopped is returned by Start when Stop was called before the session became active.
	ErrStopped = errors.New("session: stopped")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")

	// ErrChannelClosed is reported when the analysis channel closes an active session.
	ErrChannelClosed = errors.New("session: analysis channel closed")
)
