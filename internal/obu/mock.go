package obu

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLinkDown is what the mock returns once its scripted sizes run out with
// FailAfter set, simulating a dropped connection.
var ErrLinkDown = errors.New("obu: link down")

// MockSession is an in-memory Session for tests: FileSize walks a scripted
// list of sizes and Run replays canned command output.
type MockSession struct {
	mu sync.Mutex

	// Sizes are returned in order by FileSize; the last value repeats
	// unless FailAfter is set, in which case exhaustion returns ErrLinkDown.
	Sizes     []int64
	FailAfter bool

	// RunOutput is returned by Run for every command unless RunErr is set.
	RunOutput string
	RunErr    error

	sizeCalls int
	runCalls  int
	closed    bool
}

func (m *MockSession) FileSize(ctx context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrLinkDown
	}
	i := m.sizeCalls
	m.sizeCalls++
	if i >= len(m.Sizes) {
		if m.FailAfter || len(m.Sizes) == 0 {
			return 0, ErrLinkDown
		}
		return m.Sizes[len(m.Sizes)-1], nil
	}
	return m.Sizes[i], nil
}

func (m *MockSession) Run(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCalls++
	if m.RunErr != nil {
		return "", m.RunErr
	}
	return m.RunOutput, nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// RunCalls reports how many commands were executed.
func (m *MockSession) RunCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCalls
}
