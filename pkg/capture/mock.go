package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a capture source that generates synthetic frames.
// It records acquisitions and releases so tests can assert on handle lifetimes.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	held *mockDevice

	// Behaviour
	acquireErr   error
	acquireDelay time.Duration
	warmup       int
	width        int
	height       int

	// Stats
	acquires atomic.Int64
	releases atomic.Int64
	samples  atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithAcquireError makes Acquire fail with ErrDeviceUnavailable wrapping err.
func WithAcquireError(err error) MockSourceOption {
	return func(m *MockSource) { m.acquireErr = err }
}

// WithAcquireDelay makes Acquire wait before returning, honouring ctx.
func WithAcquireDelay(d time.Duration) MockSourceOption {
	return func(m *MockSource) { m.acquireDelay = d }
}

// WithWarmup makes the first n samples of every device return ErrNotReady.
func WithWarmup(n int) MockSourceOption {
	return func(m *MockSource) { m.warmup = n }
}

// WithFrameSize sets the synthetic frame size. Zero dimensions produce frames
// without known dimensions.
func WithFrameSize(width, height int) MockSourceOption {
	return func(m *MockSource) {
		m.width = width
		m.height = height
	}
}

// NewMockSource creates a new mock capture source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:    cfg,
		logger: logger.With("component", "capture.mock"),
		width:  64,
		height: 48,
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		m.width, m.height = cfg.Width, cfg.Height
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire opens a synthetic device.
func (m *MockSource) Acquire(ctx context.Context) (Device, error) {
	if m.acquireDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, ctx.Err())
		case <-time.After(m.acquireDelay):
		}
	}

	if m.acquireErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, m.acquireErr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held != nil {
		return nil, ErrAlreadyAcquired
	}

	dev := &mockDevice{src: m}
	m.held = dev
	m.acquires.Add(1)

	m.logger.Debug("mock device acquired", "width", m.width, "height", m.height)

	return dev, nil
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Acquires returns how many devices were handed out.
func (m *MockSource) Acquires() int64 {
	return m.acquires.Load()
}

// Releases returns how many devices were released.
func (m *MockSource) Releases() int64 {
	return m.releases.Load()
}

// Samples returns the total number of Sample calls across all devices.
func (m *MockSource) Samples() int64 {
	return m.samples.Load()
}

// Held reports whether a device is currently acquired.
func (m *MockSource) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != nil
}

func (m *MockSource) release(d *mockDevice) {
	m.mu.Lock()
	if m.held == d {
		m.held = nil
	}
	m.mu.Unlock()
	m.releases.Add(1)
	m.logger.Debug("mock device released")
}

// mockDevice is one synthetic capture handle.
type mockDevice struct {
	src *MockSource

	mu       sync.Mutex
	released bool
	sampled  int
	seq      uint64
}

// Sample returns a generated gradient frame that shifts with every call.
func (d *mockDevice) Sample() (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return Frame{}, ErrReleased
	}

	d.src.samples.Add(1)
	d.sampled++
	if d.sampled <= d.src.warmup {
		return Frame{}, ErrNotReady
	}

	d.seq++
	w, h := d.src.width, d.src.height
	if w <= 0 || h <= 0 {
		// Device is running but has not reported its output size yet.
		return Frame{Seq: d.seq, CapturedAt: now()}, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shift := uint8(d.seq * 8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/w) + shift,
				G: uint8(y*255/h) + shift,
				B: shift,
				A: 255,
			})
		}
	}

	return Frame{
		Image:      img,
		Width:      w,
		Height:     h,
		Seq:        d.seq,
		CapturedAt: now(),
	}, nil
}

// Release frees the device. Safe to call multiple times.
func (d *mockDevice) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()

	d.src.release(d)
}

var _ Source = (*MockSource)(nil)
