package classify

import (
	"context"
	"sync"
	"time"
)

// Mock implements Classifier for testing.
// With no labels it always answers the first class.
type Mock struct {
	// ClassifyFunc overrides the scripted labels when set.
	ClassifyFunc func(ctx context.Context, jpeg []byte) (string, error)

	classes []string
	labels  []string
	err     error

	mu    sync.Mutex
	next  int
	calls []MockCall
}

// MockCall records a Classify invocation.
type MockCall struct {
	Bytes int
	Time  time.Time
}

// NewMock creates a mock that cycles through labels.
func NewMock(labels ...string) *Mock {
	return &Mock{
		classes: append([]string(nil), DefaultClasses...),
		labels:  labels,
	}
}

// WithError makes every Classify call fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.err = err
	return m
}

// Classify returns the next scripted label.
func (m *Mock) Classify(ctx context.Context, jpeg []byte) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Bytes: len(jpeg), Time: time.Now()})
	fn, err := m.ClassifyFunc, m.err
	label := m.classes[0]
	if len(m.labels) > 0 {
		label = m.labels[m.next%len(m.labels)]
		m.next++
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, jpeg)
	}
	if err != nil {
		return "", err
	}
	if len(jpeg) == 0 {
		return "", ErrEmptyFrame
	}
	return label, nil
}

// Classes returns the default classes.
func (m *Mock) Classes() []string {
	return m.classes
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// Calls returns recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of Classify calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds the script.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}

var _ Classifier = (*Mock)(nil)
