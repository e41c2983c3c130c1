package capture

import "errors"

// Sentinel errors for capture operations.
var (
	// ErrDeviceUnavailable is returned when the camera cannot be opened
	// (permission denied, no device, remote producer missing).
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrNotReady is returned by Sample before the first frame is decoded.
	ErrNotReady = errors.New("capture: no frame ready")

	// ErrReleased is returned by Sample after the device was released.
	ErrReleased = errors.New("capture: device released")

	// ErrAlreadyAcquired is returned when Acquire is called while a device is held.
	ErrAlreadyAcquired = errors.New("capture: device already acquired")

	// ErrBackendUnsupported is returned when a backend is not compiled in.
	ErrBackendUnsupported = errors.New("capture: backend not supported in this build")
)
