//go:build opencv

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const webcamAvailable = true

// WebcamSource captures from a local camera through OpenCV.
type WebcamSource struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	held *webcamDevice
}

func newWebcamSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &WebcamSource{
		cfg:    cfg,
		logger: logger.With("component", "capture.webcam"),
	}, nil
}

// Name returns "webcam".
func (s *WebcamSource) Name() string {
	return "webcam"
}

// Acquire opens the camera and starts a background grabber.
func (s *WebcamSource) Acquire(ctx context.Context) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held != nil {
		return nil, ErrAlreadyAcquired
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	// Numeric devices are camera indices, anything else is a path or stream URL.
	var device interface{} = s.cfg.Device
	if idx, err := strconv.Atoi(s.cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: open %v: %v", ErrDeviceUnavailable, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %v not opened", ErrDeviceUnavailable, device)
	}

	if s.cfg.Width > 0 && s.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	}
	// Keep only the freshest frame in the driver queue
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	dev := &webcamDevice{
		src:  s,
		vc:   vc,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.held = dev
	go dev.grabLoop()

	s.logger.Info("camera opened", "device", s.cfg.Device)

	return dev, nil
}

func (s *WebcamSource) release(d *webcamDevice) {
	s.mu.Lock()
	if s.held == d {
		s.held = nil
	}
	s.mu.Unlock()
	s.logger.Info("camera released", "device", s.cfg.Device)
}

// webcamDevice owns one open VideoCapture.
type webcamDevice struct {
	src *WebcamSource
	vc  *gocv.VideoCapture

	frameMu sync.RWMutex
	latest  Frame
	seq     uint64

	stop        chan struct{}
	done        chan struct{}
	releaseOnce sync.Once
}

// grabLoop keeps a single latest-frame slot current.
func (d *webcamDevice) grabLoop() {
	defer close(d.done)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		if ok := d.vc.Read(&mat); !ok || mat.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			d.src.logger.Debug("frame conversion failed", "error", err)
			continue
		}

		d.frameMu.Lock()
		d.seq++
		d.latest = frameFromImage(img, d.seq)
		d.frameMu.Unlock()
	}
}

// Sample returns the most recent grabbed frame.
func (d *webcamDevice) Sample() (Frame, error) {
	select {
	case <-d.stop:
		return Frame{}, ErrReleased
	default:
	}

	d.frameMu.RLock()
	defer d.frameMu.RUnlock()

	if d.seq == 0 {
		return Frame{}, ErrNotReady
	}
	return d.latest, nil
}

// Release stops the grabber and closes the camera.
func (d *webcamDevice) Release() {
	d.releaseOnce.Do(func() {
		close(d.stop)
		<-d.done
		if err := d.vc.Close(); err != nil {
			d.src.logger.Debug("camera close failed", "error", err)
		}
		d.src.release(d)
	})
}
