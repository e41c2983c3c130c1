package analysis

import (
	"context"
	"sync"
	"time"
)

// MockDialer is a Dialer for testing that never touches the network.
// By default every Open succeeds asynchronously.
type MockDialer struct {
	mu         sync.Mutex
	conns      []*MockConn
	openErr    error
	manualOpen bool
}

// MockOption configures a MockDialer.
type MockOption func(*MockDialer)

// WithOpenError makes every Open fail with err.
func WithOpenError(err error) MockOption {
	return func(m *MockDialer) { m.openErr = err }
}

// WithManualOpen leaves connections dialing until the test calls
// MockConn.Open or MockConn.Fail.
func WithManualOpen() MockOption {
	return func(m *MockDialer) { m.manualOpen = true }
}

// NewMockDialer creates a new mock dialer.
func NewMockDialer(opts ...MockOption) *MockDialer {
	m := &MockDialer{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open records the call and resolves it according to the dialer options.
func (m *MockDialer) Open(ctx context.Context, endpoint string, ev Events) Conn {
	c := &MockConn{
		Endpoint: endpoint,
		ev:       ev,
		opened:   make(chan struct{}),
	}

	m.mu.Lock()
	m.conns = append(m.conns, c)
	openErr, manual := m.openErr, m.manualOpen
	m.mu.Unlock()

	if !manual {
		go func() {
			if openErr != nil {
				c.Fail(openErr)
				return
			}
			c.Open()
		}()
	}
	return c
}

// Conns returns every connection opened so far.
func (m *MockDialer) Conns() []*MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockConn(nil), m.conns...)
}

// OpenCount returns the number of Open calls.
func (m *MockDialer) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Last returns the most recent connection, or nil.
func (m *MockDialer) Last() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// WaitConn waits until at least n connections were opened and returns the nth.
func (m *MockDialer) WaitConn(n int, timeout time.Duration) *MockConn {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if len(m.conns) >= n {
			c := m.conns[n-1]
			m.mu.Unlock()
			return c
		}
		m.mu.Unlock()
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// MockConn is an in-memory analysis channel driven by the test.
type MockConn struct {
	Endpoint string

	ev Events

	mu       sync.Mutex
	state    connState
	resolved bool
	sent     [][]byte
	closes   int
	seq      uint64

	deliverMu sync.Mutex
	opened    chan struct{}
}

// Open delivers OnOpened. It is a no-op once the dial was resolved.
func (c *MockConn) Open() {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	if c.state == stateClosed {
		c.mu.Unlock()
		c.deliver(func() {
			if c.ev.OnFailed != nil {
				c.ev.OnFailed(ErrOpenFailed)
			}
		})
		return
	}
	c.state = stateOpen
	c.mu.Unlock()
	close(c.opened)

	c.deliver(func() {
		if c.ev.OnOpened != nil {
			c.ev.OnOpened()
		}
	})
}

// Fail delivers OnFailed wrapping cause. It is a no-op once the dial was resolved.
func (c *MockConn) Fail(cause error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	c.state = stateClosed
	c.mu.Unlock()

	err := ErrOpenFailed
	if cause != nil {
		err = wrapOpenFailed(cause)
	}
	c.deliver(func() {
		if c.ev.OnFailed != nil {
			c.ev.OnFailed(err)
		}
	})
}

// Emit delivers a result as if the service had sent it. It reports whether
// the result was delivered.
func (c *MockConn) Emit(label string) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return false
	}
	c.seq++
	r := Result{Label: label, Seq: c.seq, ReceivedAt: time.Now()}
	c.mu.Unlock()

	if c.ev.OnResult != nil {
		c.ev.OnResult(r)
	}
	return true
}

// CloseRemote simulates the service closing the channel.
func (c *MockConn) CloseRemote(err error) {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.deliver(func() {
		if c.ev.OnClosed != nil {
			c.ev.OnClosed(err)
		}
	})
}

// Send records the payload.
func (c *MockConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return ErrNotOpen
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

// Close marks the channel closed. A Closed event is synthesized in the
// background when the channel was open.
func (c *MockConn) Close() {
	c.mu.Lock()
	c.closes++
	wasOpen := c.state == stateOpen
	c.state = stateClosed
	c.mu.Unlock()

	// Wait out an in-flight Emit
	c.deliverMu.Lock()
	c.deliverMu.Unlock() //nolint:staticcheck

	if wasOpen {
		go c.deliver(func() {
			if c.ev.OnClosed != nil {
				c.ev.OnClosed(nil)
			}
		})
	}
}

// Sent returns a copy of every payload sent.
func (c *MockConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// SendCount returns how many payloads were sent.
func (c *MockConn) SendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// Closes returns how many times Close was called.
func (c *MockConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// IsClosed reports whether the channel is closed or failed.
func (c *MockConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// Opened is closed when the dial resolves successfully.
func (c *MockConn) Opened() <-chan struct{} {
	return c.opened
}

func (c *MockConn) deliver(fn func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	fn()
}

var (
	_ Dialer = (*MockDialer)(nil)
	_ Conn   = (*MockConn)(nil)
)
