package sampling

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_Ticks(t *testing.T) {
	s := New()
	var count atomic.Int64

	if err := s.Start(5*time.Millisecond, func() { count.Add(1) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	if count.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", count.Load())
	}
	if got := s.Ticks(); got != uint64(count.Load()) {
		t.Errorf("Ticks() = %d, callbacks = %d", got, count.Load())
	}
}

func TestScheduler_NoTickAfterStop(t *testing.T) {
	s := New()
	var count atomic.Int64

	if err := s.Start(time.Millisecond, func() { count.Add(1) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	s.Stop()

	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	if count.Load() != after {
		t.Errorf("callback ran after Stop: %d -> %d", after, count.Load())
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New()
	var inFlight, maxInFlight atomic.Int64

	err := s.Start(time.Millisecond, func() {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if maxInFlight.Load() != 1 {
		t.Errorf("expected at most 1 concurrent callback, got %d", maxInFlight.Load())
	}
}

func TestScheduler_StopWaitsForCallback(t *testing.T) {
	s := New()
	entered := make(chan struct{}, 1)
	var finished atomic.Bool

	_ = s.Start(time.Millisecond, func() {
		select {
		case entered <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	<-entered
	s.Stop()

	if !finished.Load() {
		t.Error("Stop returned before the in-flight callback finished")
	}
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	s := New()
	noop := func() {}

	if err := s.Start(0, noop); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(0, noop); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
	if !s.Running() {
		t.Error("expected running")
	}

	s.Stop()
	s.Stop()

	if s.Running() {
		t.Error("expected stopped")
	}

	// Restart after stop
	if err := s.Start(0, noop); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	s.Stop()

	if err := s.Start(time.Millisecond, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}
