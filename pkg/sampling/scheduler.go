// Package sampling drives a periodic callback with non-overlapping ticks.
package sampling

import (
	"errors"
	"sync"
	"time"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// ErrRunning is returned by Start when the scheduler is already running.
var ErrRunning = errors.New("sampling: scheduler already running")

// Scheduler invokes a callback at a fixed interval.
//
// The callback runs on a single goroutine, so ticks never overlap. When a
// callback overruns the interval, missed ticks are dropped rather than queued.
type Scheduler struct {
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
	ticks   uint64
}

// New creates a stopped scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Start begins calling onTick every interval. A non-positive interval uses
// DefaultInterval.
func (s *Scheduler) Start(interval time.Duration, onTick func()) error {
	if onTick == nil {
		return errors.New("sampling: nil callback")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.run(interval, onTick, s.stop, s.done)
	return nil
}

func (s *Scheduler) run(interval time.Duration, onTick func(), stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// Stop may have raced with the tick
		select {
		case <-stop:
			return
		default:
		}

		s.mu.Lock()
		s.ticks++
		s.mu.Unlock()

		onTick()
	}
}

// Stop halts the scheduler and waits for an in-flight callback to return.
// No callback starts after Stop returns. Stop is idempotent and must not be
// called from inside the callback.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Ticks returns the number of callbacks started since creation.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}
