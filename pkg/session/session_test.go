package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
)

const testEndpoint = "ws://analysis.test/ws/analyze"

func newTestSession(t *testing.T, src capture.Source, dialer analysis.Dialer, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithEndpoint(testEndpoint)}, opts...)
	s, err := New(src, dialer, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newMockSource(opts ...capture.MockSourceOption) *capture.MockSource {
	return capture.NewMockSource(capture.DefaultConfig(), nil, opts...)
}

// countingSource records how Sample is called on the devices it hands out.
type countingSource struct {
	capture.Source

	samples     atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (p *countingSource) Acquire(ctx context.Context) (capture.Device, error) {
	dev, err := p.Source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &countingDevice{Device: dev, counter: p}, nil
}

type countingDevice struct {
	capture.Device
	counter *countingSource
}

func (d *countingDevice) Sample() (capture.Frame, error) {
	n := d.counter.inFlight.Add(1)
	defer d.counter.inFlight.Add(-1)
	for {
		cur := d.counter.maxInFlight.Load()
		if n <= cur || d.counter.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	d.counter.samples.Add(1)
	return d.Device.Sample()
}

// eventsDialer keeps the Events of every Open so tests can inject late callbacks.
type eventsDialer struct {
	*analysis.MockDialer

	mu     sync.Mutex
	events []analysis.Events
}

func (d *eventsDialer) Open(ctx context.Context, endpoint string, ev analysis.Events) analysis.Conn {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
	return d.MockDialer.Open(ctx, endpoint, ev)
}

func (d *eventsDialer) Events(i int) analysis.Events {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[i]
}

func TestSession_StartAndStop(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	assert.Equal(t, Idle, s.State())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Active, s.State())
	assert.True(t, src.Held())
	assert.NotEmpty(t, s.ID())

	conn := dialer.Last()
	require.NotNil(t, conn)
	assert.Equal(t, testEndpoint, conn.Endpoint)
	assert.False(t, conn.IsClosed())

	s.Stop()

	assert.Equal(t, Stopped, s.State())
	assert.False(t, src.Held())
	assert.True(t, conn.IsClosed())
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSession_StopFromIdle(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	s.Stop()
	s.Stop()

	assert.Equal(t, Idle, s.State())
	assert.Zero(t, src.Acquires())
	assert.Zero(t, dialer.OpenCount())
}

func TestSession_DoubleStopReleasesOnce(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()

	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, int64(1), src.Releases())
	assert.Equal(t, 1, dialer.Last().Closes())
}

func TestSession_ResultAfterStopIgnored(t *testing.T) {
	src := newMockSource()
	dialer := &eventsDialer{MockDialer: analysis.NewMockDialer()}
	s := newTestSession(t, src, dialer)

	require.NoError(t, s.Start(context.Background()))
	late := dialer.Events(0)

	s.Stop()

	// The channel delivers a result that raced the stop.
	late.OnResult(analysis.Result{Label: "confident", Seq: 1})
	late.OnOpened()

	_, ok := s.Latest()
	assert.False(t, ok)
	assert.Equal(t, Stopped, s.State())
	assert.Zero(t, s.Stats().Results)

	// A stale callback must not touch a newer attempt either.
	require.NoError(t, s.Start(context.Background()))
	late.OnResult(analysis.Result{Label: "nervous", Seq: 2})
	late.OnClosed(nil)

	_, ok = s.Latest()
	assert.False(t, ok)
	assert.Equal(t, Active, s.State())
}

func TestSession_TicksSendOneFrameEach(t *testing.T) {
	src := &countingSource{Source: newMockSource()}
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	require.NoError(t, s.Start(context.Background()))
	started := time.Now()
	conn := dialer.Last()

	require.Eventually(t, func() bool { return conn.SendCount() >= 3 }, 3*time.Second, 5*time.Millisecond)
	elapsed := time.Since(started)

	s.Stop()

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.Ticks, uint64(3))
	assert.Equal(t, stats.Ticks, uint64(src.samples.Load()), "one sample per tick")
	assert.Equal(t, stats.Ticks, stats.Sent)
	assert.Equal(t, int(stats.Sent), conn.SendCount())
	assert.Equal(t, int64(1), src.maxInFlight.Load(), "ticks overlapped")

	// Three ticks at the default 100ms cadence
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)

	for _, payload := range conn.Sent() {
		_, err := capture.DecodeJPEG(payload, 0)
		assert.NoError(t, err)
	}
}

func TestSession_OpenFailed(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer(analysis.WithOpenError(errors.New("connection refused")))

	var mu sync.Mutex
	var states []State
	s := newTestSession(t, src, dialer, WithOnStateChange(func(_, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	}))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelOpenFailed)

	assert.Equal(t, Stopped, s.State())
	assert.False(t, src.Held())
	assert.Equal(t, int64(1), src.Releases())
	assert.Zero(t, s.Stats().Ticks)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Acquiring, Connecting, Stopped}, states)
}

func TestSession_DeviceUnavailable(t *testing.T) {
	src := newMockSource(capture.WithAcquireError(errors.New("permission denied")))
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, Stopped, s.State())
	assert.Zero(t, dialer.OpenCount())
}

func TestSession_LastResultWins(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()

	var mu sync.Mutex
	var seen []string
	s := newTestSession(t, src, dialer, WithOnResult(func(r analysis.Result) {
		mu.Lock()
		seen = append(seen, r.Label)
		mu.Unlock()
	}))

	require.NoError(t, s.Start(context.Background()))
	conn := dialer.Last()

	require.True(t, conn.Emit("confident"))
	require.True(t, conn.Emit("nervous"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	r, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "nervous", r.Label)

	mu.Lock()
	assert.Equal(t, []string{"confident", "nervous"}, seen)
	mu.Unlock()
	assert.Equal(t, uint64(2), s.Stats().Results)
}

func TestSession_RemoteCloseReleasesCamera(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	require.NoError(t, s.Start(context.Background()))
	conn := dialer.Last()
	require.True(t, conn.Emit("confident"))

	conn.CloseRemote(errors.New("connection reset"))

	require.Eventually(t, func() bool { return s.State() == Stopped }, time.Second, time.Millisecond)
	assert.False(t, src.Held())
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSession_Restart(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer)

	require.NoError(t, s.Start(context.Background()))
	firstID := s.ID()
	first := dialer.Last()
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	assert.NotEqual(t, firstID, s.ID())
	assert.NotSame(t, first, dialer.Last())
	assert.Equal(t, int64(2), src.Acquires())
	assert.Equal(t, 2, dialer.OpenCount())

	s.Stop()
	assert.Equal(t, int64(2), src.Releases())
}

func TestSession_StartWhileActive(t *testing.T) {
	s := newTestSession(t, newMockSource(), analysis.NewMockDialer())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, Active, s.State())
}

func TestSession_CancelledStartKeepsOtherAttempt(t *testing.T) {
	src := newMockSource()
	s := newTestSession(t, src, analysis.NewMockDialer())

	require.NoError(t, s.Start(context.Background()))
	id := s.ID()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		err := s.Start(ctx)
		if !errors.Is(err, ErrAlreadyStarted) {
			assert.ErrorIs(t, err, context.Canceled)
		}
		require.Equal(t, Active, s.State(), "call %d stopped the running attempt", i)
	}

	assert.Equal(t, id, s.ID())
	assert.True(t, src.Held())
	assert.Zero(t, src.Releases())
}

func TestSession_StopWhileConnecting(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer(analysis.WithManualOpen())
	s := newTestSession(t, src, dialer)

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background()) }()

	conn := dialer.WaitConn(1, time.Second)
	require.NotNil(t, conn)
	require.Eventually(t, func() bool { return s.State() == Connecting }, time.Second, time.Millisecond)

	s.Stop()

	assert.ErrorIs(t, <-errc, ErrStopped)
	assert.Equal(t, Stopped, s.State())
	assert.False(t, src.Held())
	assert.Equal(t, 1, conn.Closes())

	// The handshake completing afterwards must not resurrect the session.
	conn.Open()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Stopped, s.State())
}

func TestSession_StartContextCancelled(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer(analysis.WithManualOpen())
	s := newTestSession(t, src, dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Stopped, s.State())
	assert.False(t, src.Held())
}

func TestSession_StopWhileAcquiring(t *testing.T) {
	src := newMockSource(capture.WithAcquireDelay(time.Second))
	s := newTestSession(t, src, analysis.NewMockDialer())

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return s.State() == Acquiring }, time.Second, time.Millisecond)
	s.Stop()

	assert.ErrorIs(t, <-errc, ErrStopped)
	assert.Equal(t, Stopped, s.State())
	require.Eventually(t, func() bool { return !src.Held() }, time.Second, time.Millisecond)
}

func TestSession_Close(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()
	s, err := New(src, dialer, WithEndpoint(testEndpoint))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))

	s.Close()
	s.Close()

	assert.Equal(t, Stopped, s.State())
	assert.False(t, src.Held())
	assert.True(t, dialer.Last().IsClosed())
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)
	s.Stop()
}

func TestSession_WarmupTicksSkipped(t *testing.T) {
	src := newMockSource(capture.WithWarmup(2))
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer, WithInterval(5*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().Sent >= 1 }, 2*time.Second, time.Millisecond)
	s.Stop()

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.Skipped, uint64(2))
	assert.Equal(t, stats.Ticks, stats.Sent+stats.Skipped+stats.Dropped)
}

func TestSession_FramesWithoutDimensionsSkipped(t *testing.T) {
	src := newMockSource(capture.WithFrameSize(0, 0))
	dialer := analysis.NewMockDialer()
	s := newTestSession(t, src, dialer, WithInterval(5*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().Ticks >= 3 }, 2*time.Second, time.Millisecond)
	s.Stop()

	assert.Zero(t, dialer.Last().SendCount())
	assert.Zero(t, s.Stats().Sent)
}

func TestSession_RandomStartStopSequences(t *testing.T) {
	for round := 0; round < 10; round++ {
		src := newMockSource()
		dialer := analysis.NewMockDialer()
		s := newTestSession(t, src, dialer, WithInterval(2*time.Millisecond))

		rng := rand.New(rand.NewSource(int64(round)))
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			start := rng.Intn(2) == 0
			delay := time.Duration(rng.Intn(5)) * time.Millisecond
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(delay)
				if start {
					ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
					defer cancel()
					_ = s.Start(ctx)
				} else {
					s.Stop()
				}
			}()
		}
		wg.Wait()

		if s.State() == Active {
			assert.True(t, src.Held(), "round %d: active without a device", round)
			assert.False(t, dialer.Last().IsClosed(), "round %d: active with a closed channel", round)
		}

		s.Stop()
		require.Equal(t, Stopped, s.State(), "round %d", round)
		require.Eventually(t, func() bool {
			return !src.Held() && src.Acquires() == src.Releases()
		}, time.Second, time.Millisecond, "round %d: device leaked", round)
		for _, c := range dialer.Conns() {
			assert.True(t, c.IsClosed(), "round %d: channel leaked", round)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	src := newMockSource()
	dialer := analysis.NewMockDialer()

	_, err := New(nil, dialer, WithEndpoint(testEndpoint))
	assert.Error(t, err)

	_, err = New(src, nil, WithEndpoint(testEndpoint))
	assert.Error(t, err)

	_, err = New(src, dialer)
	assert.Error(t, err, "endpoint is required")

	_, err = New(src, dialer, WithEndpoint(testEndpoint), WithJPEGQuality(0))
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "unknown", State(42).String())
}
