package capture

import (
	"fmt"
	"log/slog"
)

// NewSource creates a capture source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating capture source",
		"backend", backend,
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendWebcam:
		return newWebcamSource(cfg, logger)
	case BackendWebRTC:
		return NewWebRTCSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best backend compiled into this binary.
func detectBestBackend() Backend {
	if webcamAvailable {
		return BackendWebcam
	}
	return BackendMock
}

// AvailableBackends returns the backends usable in this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendWebRTC}
	if webcamAvailable {
		backends = append(backends, BackendWebcam)
	}
	return backends
}
