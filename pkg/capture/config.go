package capture

import (
	"fmt"
	"time"
)

// Backend selects the capture implementation.
type Backend string

const (
	// BackendAuto picks webcam when OpenCV is compiled in, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendWebcam reads a local camera through OpenCV.
	BackendWebcam Backend = "webcam"
	// BackendWebRTC receives a remote camera over WebRTC.
	BackendWebRTC Backend = "webrtc"
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "auto"
	Backend Backend `json:"backend"`

	// Device identifies the camera.
	//   - webcam: device index ("0") or a file/stream path
	//   - webrtc: signalling server URL ("ws://host:8443")
	//   - mock: ignored
	Device string `json:"device"`

	// Producer is the webrtcsink producer name to subscribe to (webrtc only).
	Producer string `json:"producer"`

	// Width and Height request a capture resolution (webcam only, 0 = driver default).
	Width  int `json:"width"`
	Height int `json:"height"`

	// AcquireTimeout bounds how long Acquire waits for the first track (webrtc).
	AcquireTimeout time.Duration `json:"acquire_timeout"`

	// DecodeInterval rate-limits H264 decoding (webrtc).
	DecodeInterval time.Duration `json:"decode_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		Device:         "0",
		Producer:       "interview-cam",
		Width:          640,
		Height:         480,
		AcquireTimeout: 15 * time.Second,
		DecodeInterval: 100 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendWebcam, BackendWebRTC, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("resolution must not be negative, got %dx%d", c.Width, c.Height)
	}
	if c.Backend == BackendWebRTC && c.Device == "" {
		return fmt.Errorf("webrtc backend requires a signalling URL in device")
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("acquire_timeout must not be negative, got %v", c.AcquireTimeout)
	}
	return nil
}
