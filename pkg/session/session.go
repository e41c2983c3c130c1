// Package session orchestrates one capture-and-analyze streaming session.
//
// A Session owns a capture device, an analysis channel and a sampling
// scheduler for the duration of one attempt:
//
//	Idle -> Acquiring -> Connecting -> Active -> Stopped
//
// Every transition runs on a single loop goroutine. The scheduler, the channel
// callbacks and the Start/Stop calls are producers onto that loop, so two
// transitions never run concurrently. Whatever ends an attempt (Stop, a channel
// close, an open failure, Close) runs the same teardown: stop the scheduler,
// close the channel, release the device, clear the latest result.
//
// Example usage:
//
//	s, err := session.New(source, analysis.NewDialer(),
//	    session.WithEndpoint("ws://localhost:8000/ws/analyze"),
//	    session.WithOnResult(func(r analysis.Result) { fmt.Println(r.Label) }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.Start(ctx); err != nil {
//	    return err // errors.Is(err, session.ErrDeviceUnavailable) etc.
//	}
//	...
//	s.Stop()
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
	"github.com/teslashibe/go-jobcoach/pkg/sampling"
)

// Session is a restartable streaming session. Its methods are safe for
// concurrent use.
type Session struct {
	config *Config
	logger *slog.Logger
	source capture.Source
	dialer analysis.Dialer

	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// att is owned by the loop goroutine.
	att *attempt

	mu     sync.RWMutex
	state  State
	id     string
	latest *analysis.Result
	stats  Stats
}

// attempt holds the handles of one Start.
type attempt struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	device capture.Device
	conn   analysis.Conn
	sched  *sampling.Scheduler

	// stopping is closed first during teardown; producers blocked on the
	// loop give up when it closes.
	stopping chan struct{}

	// reply settles the pending Start exactly once.
	reply chan error
}

// New creates a session in the Idle state and starts its loop.
// Call Close to terminate the loop.
func New(source capture.Source, dialer analysis.Dialer, opts ...Option) (*Session, error) {
	if source == nil {
		return nil, errors.New("session: capture source required")
	}
	if dialer == nil {
		return nil, errors.New("session: analysis dialer required")
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		config: cfg,
		logger: cfg.Logger.With("component", "session"),
		source: source,
		dialer: dialer,
		events: make(chan event),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		state:  Idle,
	}

	go s.loop()
	return s, nil
}

// Start acquires the camera, opens the analysis channel and begins sampling.
// It blocks until the session is Active or the attempt failed. Start fails
// with ErrDeviceUnavailable or ErrChannelOpenFailed at start time, and with
// ErrAlreadyStarted while another attempt is in progress. If ctx ends first,
// the attempt this call started is stopped and ctx.Err() is returned; an
// attempt owned by another caller is never touched.
func (s *Session) Start(ctx context.Context) error {
	reply := make(chan error, 1)

	select {
	case s.events <- startReq{reply: reply}:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
	}

	// The loop may have answered already; a rejected call owns no attempt.
	select {
	case err := <-reply:
		return err
	default:
	}

	ack := make(chan struct{})
	select {
	case s.events <- cancelStart{reply: reply, err: ctx.Err(), ack: ack}:
		<-ack
	case <-s.quit:
		<-s.done
	}

	select {
	case err := <-reply:
		return err
	default:
		return ctx.Err()
	}
}

// Stop tears the current attempt down and waits for it. It is safe from any
// state and any goroutine except the observers; from Idle or Stopped it is a no-op.
func (s *Session) Stop() {
	reply := make(chan struct{})

	select {
	case s.events <- stopReq{reply: reply}:
	case <-s.quit:
		<-s.done
		return
	}

	select {
	case <-reply:
	case <-s.done:
	}
}

// Close stops the session and terminates its loop. Further Start calls
// return ErrClosed. Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ID returns the identifier of the current or most recent attempt.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Latest returns the most recent result of the active attempt.
func (s *Session) Latest() (analysis.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return analysis.Result{}, false
	}
	return *s.latest, true
}

// Stats returns counters for the current or most recent attempt.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Session) loop() {
	defer close(s.done)

	for {
		select {
		case ev := <-s.events:
			ev.apply(s)
		case <-s.quit:
			s.teardown(ErrClosed)
			return
		}
	}
}

// post hands ev to the loop on behalf of att. It returns false when att is
// being torn down or the session closed.
func (s *Session) post(att *attempt, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-att.stopping:
		return false
	case <-s.quit:
		return false
	}
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}

	s.logger.Info("session state", "session_id", s.ID(), "from", from.String(), "to", to.String())
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(from, to)
	}
}

func (s *Session) updateStats(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *Session) start(reply chan error) {
	if s.att != nil {
		reply <- ErrAlreadyStarted
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	att := &attempt{
		id:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
		reply:    reply,
	}
	s.att = att

	s.mu.Lock()
	s.id = att.id
	s.latest = nil
	s.stats = Stats{}
	s.mu.Unlock()

	s.setState(Acquiring)

	go func() {
		dev, err := s.source.Acquire(att.ctx)
		if !s.post(att, acquiredEvent{att: att, device: dev, err: err}) && dev != nil {
			// Torn down while acquiring; nobody else will release it
			dev.Release()
		}
	}()
}

func (s *Session) onAcquired(ev acquiredEvent) {
	att := s.att
	if ev.att != att {
		if ev.device != nil {
			ev.device.Release()
		}
		return
	}

	if ev.err != nil {
		err := ev.err
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		s.logger.Warn("camera unavailable", "session_id", att.id, "source", s.source.Name(), "error", ev.err)
		s.teardown(err)
		return
	}

	att.device = ev.device
	s.setState(Connecting)

	att.conn = s.dialer.Open(att.ctx, s.config.Endpoint, analysis.Events{
		OnOpened: func() { s.post(att, openedEvent{att: att}) },
		OnFailed: func(err error) { s.post(att, failedEvent{att: att, err: err}) },
		OnResult: func(r analysis.Result) { s.post(att, resultEvent{att: att, result: r}) },
		OnClosed: func(err error) { s.post(att, closedEvent{att: att, err: err}) },
	})
}

func (s *Session) onOpened(ev openedEvent) {
	att := s.att
	if ev.att != att || s.State() != Connecting {
		return
	}

	s.setState(Active)

	att.sched = sampling.New()
	if err := att.sched.Start(s.config.Interval, func() { s.tick(att) }); err != nil {
		s.teardown(fmt.Errorf("session: start scheduler: %w", err))
		return
	}

	s.settle(att, nil)
}

func (s *Session) onFailed(ev failedEvent) {
	if ev.att != s.att {
		return
	}

	err := ev.err
	if !errors.Is(err, ErrChannelOpenFailed) {
		err = fmt.Errorf("%w: %v", ErrChannelOpenFailed, err)
	}
	s.logger.Warn("analysis channel failed", "session_id", ev.att.id, "error", ev.err)
	s.teardown(err)
}

func (s *Session) onClosed(ev closedEvent) {
	if ev.att != s.att {
		return
	}

	if s.State() == Connecting {
		s.onFailed(failedEvent{att: ev.att, err: fmt.Errorf("closed during handshake: %v", ev.err)})
		return
	}

	s.logger.Info("analysis channel closed, releasing camera", "session_id", ev.att.id, "error", ev.err)
	if ev.err != nil {
		s.teardown(fmt.Errorf("%w: %v", ErrChannelClosed, ev.err))
		return
	}
	s.teardown(ErrChannelClosed)
}

func (s *Session) onResult(ev resultEvent) {
	if ev.att != s.att || s.State() != Active {
		return
	}

	r := ev.result
	s.mu.Lock()
	s.latest = &r
	s.stats.Results++
	s.mu.Unlock()

	s.logger.Debug("analysis result", "session_id", ev.att.id, "label", r.Label, "seq", r.Seq)
	if s.config.OnResult != nil {
		s.config.OnResult(r)
	}
}

// tick runs on the scheduler goroutine and blocks until the loop handled it,
// so the next tick cannot begin before this one finished.
func (s *Session) tick(att *attempt) {
	done := make(chan struct{})
	if !s.post(att, tickEvent{att: att, done: done}) {
		return
	}
	select {
	case <-done:
	case <-att.stopping:
	case <-s.quit:
	}
}

func (s *Session) onTick(ev tickEvent) {
	defer close(ev.done)

	att := s.att
	if ev.att != att || s.State() != Active {
		return
	}

	frame, err := att.device.Sample()
	s.updateStats(func(st *Stats) { st.Ticks++ })
	if err != nil {
		if !errors.Is(err, capture.ErrNotReady) {
			s.logger.Debug("sample failed", "session_id", att.id, "error", err)
		}
		s.updateStats(func(st *Stats) { st.Skipped++ })
		return
	}
	if !frame.HasDimensions() {
		s.updateStats(func(st *Stats) { st.Skipped++ })
		return
	}

	payload, err := capture.EncodeJPEG(frame, s.config.JPEGQuality)
	if err != nil {
		s.logger.Warn("encode frame failed", "session_id", att.id, "error", err)
		s.updateStats(func(st *Stats) { st.Skipped++ })
		return
	}

	if err := att.conn.Send(payload); err != nil {
		if !errors.Is(err, analysis.ErrNotOpen) {
			s.logger.Debug("send failed", "session_id", att.id, "error", err)
		}
		s.updateStats(func(st *Stats) { st.Dropped++ })
		return
	}
	s.updateStats(func(st *Stats) { st.Sent++ })
}

// teardown releases everything the current attempt holds and moves to
// Stopped. It is the single exit path of every attempt and never fails.
func (s *Session) teardown(cause error) {
	att := s.att
	if att == nil {
		return
	}

	close(att.stopping)
	att.cancel()

	if att.sched != nil {
		att.sched.Stop()
	}
	if att.conn != nil {
		att.conn.Close()
	}
	if att.device != nil {
		att.device.Release()
	}

	s.att = nil
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()

	s.setState(Stopped)

	if cause == nil {
		cause = ErrStopped
	}
	s.settle(att, cause)
}

// settle answers the pending Start of att, once.
func (s *Session) settle(att *attempt, err error) {
	if att.reply == nil {
		return
	}
	att.reply <- err
	att.reply = nil
}
