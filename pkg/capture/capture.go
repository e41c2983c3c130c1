// Package capture acquires a live camera and exposes it as frames sampled on demand.
//
// A Source hands out at most one Device at a time. The Device owns the underlying
// camera handle until Release is called; Release is idempotent and never fails, so it
// can run from any teardown path.
//
// Backends:
//   - webcam - local camera through OpenCV (build tag "opencv")
//   - webrtc - remote camera published by a GStreamer webrtcsink signalling server
//   - mock   - synthetic frames for tests and demos
//
// Example usage:
//
//	src, _ := capture.NewSource(capture.DefaultConfig(), logger)
//	dev, err := src.Acquire(ctx)
//	if err != nil {
//	    return err // errors.Is(err, capture.ErrDeviceUnavailable)
//	}
//	defer dev.Release()
//
//	frame, err := dev.Sample()
//	if errors.Is(err, capture.ErrNotReady) {
//	    // camera has not produced a frame yet
//	}
package capture

import (
	"context"
	"image"
	"time"
)

var now = time.Now

// Frame is one still image sampled from a device.
// Frames are transient: callers encode and drop them, nothing is retained.
type Frame struct {
	// Image holds the decoded pixels.
	Image image.Image

	// Width and Height are zero until the device knows its output size.
	Width  int
	Height int

	// Seq increases by one for every frame the device produced.
	Seq uint64

	// CapturedAt is when the device produced the frame.
	CapturedAt time.Time
}

// HasDimensions reports whether the frame carries pixels of a known size.
func (f Frame) HasDimensions() bool {
	return f.Image != nil && f.Width > 0 && f.Height > 0
}

// Source acquires exclusive handles to a capture device.
type Source interface {
	// Acquire opens the device. It fails with ErrDeviceUnavailable when permission is
	// denied or no device exists, and with ErrAlreadyAcquired while a previous Device
	// from this Source has not been released.
	Acquire(ctx context.Context) (Device, error)

	// Name returns the backend name (e.g., "webcam", "webrtc", "mock").
	Name() string
}

// Device is an acquired, exclusively owned capture handle.
type Device interface {
	// Sample returns the most recent frame. It returns ErrNotReady until the device
	// has produced its first frame and ErrReleased after Release.
	Sample() (Frame, error)

	// Release stops the device and frees the handle.
	// Calling Release more than once is a no-op.
	Release()
}
