package encoder

import (
	"context"
	"errors"
	"sync"
)

// ErrMockKilled is the terminal error reported by a force-killed mock process.
var ErrMockKilled = errors.New("encoder: mock process killed")

// Mock implements Engine for testing. Launched processes are controllable:
// tests drive start and termination explicitly, except that Stop finishes
// the process cleanly and Kill finishes it with ErrMockKilled, mirroring a
// well-behaved external encoder.
type Mock struct {
	// AvailableErr is returned by Available when set.
	AvailableErr error

	// LaunchErr makes every Launch fail when set.
	LaunchErr error

	mu       sync.Mutex
	launches []LaunchRequest
	procs    []*MockProcess
}

// NewMock creates a mock engine.
func NewMock() *Mock {
	return &Mock{}
}

// Available returns AvailableErr.
func (m *Mock) Available() error {
	return m.AvailableErr
}

// Launch records the request and returns a fresh controllable process.
func (m *Mock) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if m.LaunchErr != nil {
		return nil, m.LaunchErr
	}

	p := &MockProcess{
		startedCh: make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	m.mu.Lock()
	m.launches = append(m.launches, req)
	m.procs = append(m.procs, p)
	m.mu.Unlock()

	return p, nil
}

// Launches returns a copy of all recorded launch requests.
func (m *Mock) Launches() []LaunchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LaunchRequest, len(m.launches))
	copy(out, m.launches)
	return out
}

// LaunchCount returns the number of processes launched so far.
func (m *Mock) LaunchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.launches)
}

// Proc returns the i-th launched process, or nil when out of range.
func (m *Mock) Proc(i int) *MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.procs) {
		return nil
	}
	return m.procs[i]
}

// LastProc returns the most recently launched process, or nil.
func (m *Mock) LastProc() *MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.procs) == 0 {
		return nil
	}
	return m.procs[len(m.procs)-1]
}

// MockProcess is a controllable Process.
type MockProcess struct {
	startedOnce sync.Once
	startedCh   chan struct{}
	doneOnce    sync.Once
	doneCh      chan struct{}

	mu      sync.Mutex
	err     error
	output  string
	stopped bool
	killed  bool
}

// SignalStarted marks the process as having begun writing output.
func (p *MockProcess) SignalStarted() {
	p.startedOnce.Do(func() { close(p.startedCh) })
}

// Finish terminates the process with the given error (nil = clean end).
func (p *MockProcess) Finish(err error) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.doneCh)
	})
}

// SetOutput sets the diagnostic tail returned by Output.
func (p *MockProcess) SetOutput(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = s
}

func (p *MockProcess) Started() <-chan struct{} { return p.startedCh }
func (p *MockProcess) Done() <-chan struct{}    { return p.doneCh }

func (p *MockProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *MockProcess) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

// Stop marks the process stopped and finishes it cleanly.
func (p *MockProcess) Stop() error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.Finish(nil)
	return nil
}

// Kill marks the process killed and finishes it with ErrMockKilled.
func (p *MockProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Finish(ErrMockKilled)
	return nil
}

// WasStopped reports whether Stop was called.
func (p *MockProcess) WasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// WasKilled reports whether Kill was called.
func (p *MockProcess) WasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
