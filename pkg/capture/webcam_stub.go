//go:build !opencv

package capture

import (
	"fmt"
	"log/slog"
)

const webcamAvailable = false

// newWebcamSource returns an error when OpenCV is not compiled in.
func newWebcamSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: webcam requires building with -tags opencv", ErrBackendUnsupported)
}
