package session

import (
	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
)

// event is one input to the session loop.
type event interface {
	apply(s *Session)
}

type startReq struct {
	reply chan error
}

func (e startReq) apply(s *Session) { s.start(e.reply) }

type stopReq struct {
	reply chan struct{}
}

func (e stopReq) apply(s *Session) {
	defer close(e.reply)
	s.teardown(nil)
}

// cancelStart abandons the attempt whose Start is still waiting on reply.
type cancelStart struct {
	reply chan error
	err   error
	ack   chan struct{}
}

func (e cancelStart) apply(s *Session) {
	defer close(e.ack)
	if s.att != nil && s.att.reply == e.reply {
		s.teardown(e.err)
	}
}

type acquiredEvent struct {
	att    *attempt
	device capture.Device
	err    error
}

func (e acquiredEvent) apply(s *Session) { s.onAcquired(e) }

type openedEvent struct {
	att *attempt
}

func (e openedEvent) apply(s *Session) { s.onOpened(e) }

type failedEvent struct {
	att *attempt
	err error
}

func (e failedEvent) apply(s *Session) { s.onFailed(e) }

type resultEvent struct {
	att    *attempt
	result analysis.Result
}

func (e resultEvent) apply(s *Session) { s.onResult(e) }

type closedEvent struct {
	att *attempt
	err error
}

func (e closedEvent) apply(s *Session) { s.onClosed(e) }

type tickEvent struct {
	att  *attempt
	done chan struct{}
}

func (e tickEvent) apply(s *Session) { s.onTick(e) }
