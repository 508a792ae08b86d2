// Package recorder supervises the set of active named capture processes.
//
// Each stream has at most one RecordingInstance at any instant. Instances
// move through Registered → Starting → Running → {Ended | Failed}; the
// terminal transition removes the instance from the active set and is
// delivered on one unified event channel, so callers handle the clean end
// and the failure branch through the same path.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-io/vigil/internal/encoder"
	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
	"github.com/vigil-io/vigil/internal/stream"
)

// ErrDuplicateInstance is returned by Add when the stream already has an
// active instance. The original instance is untouched.
var ErrDuplicateInstance = errors.New("recorder: instance already active for stream")

// State is the lifecycle state of one recording instance.
type State int

const (
	// StateRegistered means the instance exists but has not been started.
	StateRegistered State = iota
	// StateStarting means the process has been launched but has not begun
	// writing output yet.
	StateStarting
	// StateRunning means the process is writing the segment.
	StateRunning
	// StateEnded means the process finished cleanly.
	StateEnded
	// StateFailed means the process terminated with an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind tags a lifecycle event.
type EventKind int

const (
	// EventStarted means the process began writing the destination file.
	// The file is presumed to exist from this point, subject to a short
	// flush latency consumers must tolerate.
	EventStarted EventKind = iota
	// EventEnded means the process finished cleanly.
	EventEnded
	// EventFailed means the process terminated with an error.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification. For a given instance the observed
// order is exactly [Started, Ended] or [Started, Failed]; no instance
// delivers both terminals, and Started is skipped only if the process died
// before producing any output.
type Event struct {
	Kind        EventKind
	Spec        stream.Spec
	Destination string
	RunID       string

	// Err and Diagnostic are set on EventFailed only.
	Err        error
	Diagnostic string
}

// Instance is one active or starting capture.
type Instance struct {
	Name        string
	Destination string
	Spec        stream.Spec
	RunID       string

	state     State
	req       encoder.LaunchRequest
	proc      encoder.Process
	startedAt time.Time
}

// State returns the instance's current lifecycle state.
func (i *Instance) State() State {
	return i.state
}

// Config configures the instance manager.
type Config struct {
	// GraceSeconds is added to a bounded segment's duration to form the
	// supervision timeout after which a stuck process is force-killed.
	// Default: 30.
	GraceSeconds int64

	// EventBuffer is the capacity of the event channel. Default: 64.
	EventBuffer int
}

// DefaultConfig returns default manager configuration.
func DefaultConfig() Config {
	return Config{
		GraceSeconds: 30,
		EventBuffer:  64,
	}
}

// Manager owns the active instance set. All mutation goes through its
// operations; there is no ambient registry.
type Manager struct {
	engine  encoder.Engine
	config  Config
	logger  *logging.Logger
	metrics *metrics.RecorderMetrics

	mu        sync.Mutex
	instances map[string]*Instance
	events    chan Event
}

// NewManager creates an instance manager driving the given engine.
func NewManager(engine encoder.Engine, config Config, logger *logging.Logger) *Manager {
	if config.GraceSeconds <= 0 {
		config.GraceSeconds = 30
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Manager{
		engine:    engine,
		config:    config,
		logger:    logger.WithComponent("recorder"),
		instances: make(map[string]*Instance),
		events:    make(chan Event, config.EventBuffer),
	}
}

// WithMetrics attaches recorder metrics. Call before Run.
func (m *Manager) WithMetrics(rm *metrics.RecorderMetrics) *Manager {
	m.metrics = rm
	return m
}

// Events returns the unified lifecycle notification channel. One consumer
// is expected; events for an instance are delivered in lifecycle order.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Add registers a new instance for the stream without starting it.
// It fails with ErrDuplicateInstance when the stream already has an active
// instance, leaving the original untouched.
func (m *Manager) Add(spec stream.Spec, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[spec.Name]; exists {
		m.logger.Warnf("duplicate instance rejected", map[string]any{
			"stream":      spec.Name,
			"destination": destination,
		})
		return fmt.Errorf("%w: %q", ErrDuplicateInstance, spec.Name)
	}

	inst := &Instance{
		Name:        spec.Name,
		Destination: destination,
		Spec:        spec,
		RunID:       uuid.New().String(),
		state:       StateRegistered,
		req:         buildLaunchRequest(spec, destination),
	}
	m.instances[spec.Name] = inst
	m.recordActive()

	m.logger.Debugf("instance registered", map[string]any{
		"stream":      spec.Name,
		"destination": destination,
		"runId":       inst.RunID,
	})
	return nil
}

// buildLaunchRequest maps a spec onto one encoder invocation.
func buildLaunchRequest(spec stream.Spec, destination string) encoder.LaunchRequest {
	return encoder.LaunchRequest{
		Source:      spec.Source,
		Destination: destination,
		Format:      spec.Container,
		DurationSec: spec.FileDurationSec,
		Video:       spec.Video,
		Audio:       spec.Audio,
		InputArgs:   spec.InputArgs,
		OutputArgs:  spec.OutputArgs,
	}
}

// Run starts every registered instance that is not already running.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	pending := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if inst.state == StateRegistered {
			pending = append(pending, inst)
		}
	}
	m.mu.Unlock()

	for _, inst := range pending {
		m.start(ctx, inst)
	}
}

// RunOne starts exactly one registered instance by name. Unknown names and
// already-started instances are a silent no-op.
func (m *Manager) RunOne(ctx context.Context, name string) {
	m.mu.Lock()
	inst, ok := m.instances[name]
	if !ok || inst.state != StateRegistered {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.start(ctx, inst)
}

// start launches the process and hands it to a watcher goroutine.
func (m *Manager) start(ctx context.Context, inst *Instance) {
	m.mu.Lock()
	if inst.state != StateRegistered {
		m.mu.Unlock()
		return
	}
	inst.state = StateStarting
	m.mu.Unlock()

	proc, err := m.engine.Launch(ctx, inst.req)
	if err != nil {
		m.logger.Errorf("launch failed", map[string]any{
			"stream":      inst.Name,
			"destination": inst.Destination,
			"error":       err.Error(),
		})
		m.remove(inst.Name, StateFailed)
		if m.metrics != nil {
			m.metrics.RecordSegmentFailed()
		}
		m.events <- Event{
			Kind:        EventFailed,
			Spec:        inst.Spec,
			Destination: inst.Destination,
			RunID:       inst.RunID,
			Err:         err,
		}
		return
	}

	m.mu.Lock()
	inst.proc = proc
	m.mu.Unlock()

	go m.watch(inst, proc)
}

// watch observes one process until its terminal transition. The supervision
// timer fires only for bounded segments: a process that outlives its
// duration cap plus grace is force-killed and terminates as Failed.
func (m *Manager) watch(inst *Instance, proc encoder.Process) {
	var supervision <-chan time.Time
	if inst.Spec.FileDurationSec > 0 {
		timer := time.NewTimer(time.Duration(inst.Spec.FileDurationSec+m.config.GraceSeconds) * time.Second)
		defer timer.Stop()
		supervision = timer.C
	}

	started := proc.Started()
	for {
		select {
		case <-started:
			started = nil
			m.onStarted(inst)

		case <-supervision:
			supervision = nil
			m.logger.Warnf("supervision timeout, force-killing process", map[string]any{
				"stream":      inst.Name,
				"destination": inst.Destination,
				"capSeconds":  inst.Spec.FileDurationSec,
			})
			if m.metrics != nil {
				m.metrics.RecordSupervisionKill()
			}
			_ = proc.Kill()

		case <-proc.Done():
			// A start signal racing the terminal must still be observed
			// first so the [started, terminal] ordering holds.
			if started != nil {
				select {
				case <-started:
					m.onStarted(inst)
				default:
				}
			}
			m.onDone(inst, proc)
			return
		}
	}
}

func (m *Manager) onStarted(inst *Instance) {
	m.mu.Lock()
	inst.state = StateRunning
	inst.startedAt = time.Now()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSegmentStarted()
	}
	m.logger.Infof("capture started", map[string]any{
		"stream":      inst.Name,
		"destination": inst.Destination,
	})
	m.events <- Event{
		Kind:        EventStarted,
		Spec:        inst.Spec,
		Destination: inst.Destination,
		RunID:       inst.RunID,
	}
}

func (m *Manager) onDone(inst *Instance, proc encoder.Process) {
	err := proc.Err()

	if err != nil {
		m.remove(inst.Name, StateFailed)
		m.logger.Errorf("capture failed", map[string]any{
			"stream":      inst.Name,
			"destination": inst.Destination,
			"error":       err.Error(),
			"diagnostic":  proc.Output(),
		})
		if m.metrics != nil {
			m.metrics.RecordSegmentFailed()
		}
		m.events <- Event{
			Kind:        EventFailed,
			Spec:        inst.Spec,
			Destination: inst.Destination,
			RunID:       inst.RunID,
			Err:         err,
			Diagnostic:  proc.Output(),
		}
		return
	}

	m.remove(inst.Name, StateEnded)
	m.logger.Infof("capture ended", map[string]any{
		"stream":      inst.Name,
		"destination": inst.Destination,
	})
	if m.metrics != nil {
		var seconds float64
		m.mu.Lock()
		if !inst.startedAt.IsZero() {
			seconds = time.Since(inst.startedAt).Seconds()
		}
		m.mu.Unlock()
		m.metrics.RecordSegmentEnded(seconds)
	}
	m.events <- Event{
		Kind:        EventEnded,
		Spec:        inst.Spec,
		Destination: inst.Destination,
		RunID:       inst.RunID,
	}
}

// remove drops the instance from the active set and records its terminal
// state.
func (m *Manager) remove(name string, terminal State) {
	m.mu.Lock()
	if inst, ok := m.instances[name]; ok {
		inst.state = terminal
		delete(m.instances, name)
	}
	m.mu.Unlock()
	m.recordActive()
}

// Stop requests graceful termination of every active process. Termination
// is confirmed only by the terminal event, never synchronously. Instances
// that were never started are dropped directly; they have no process and
// will produce no event.
func (m *Manager) Stop() {
	m.mu.Lock()
	active := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		active = append(active, inst)
	}
	m.mu.Unlock()

	for _, inst := range active {
		m.stopInstance(inst)
	}
}

// StopOne requests graceful termination of one instance by name.
// Unknown names are a silent no-op.
func (m *Manager) StopOne(name string) {
	m.mu.Lock()
	inst, ok := m.instances[name]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.stopInstance(inst)
}

func (m *Manager) stopInstance(inst *Instance) {
	m.mu.Lock()
	proc := inst.proc
	registered := inst.state == StateRegistered
	m.mu.Unlock()

	if registered {
		m.logger.Debugf("dropping never-started instance", map[string]any{"stream": inst.Name})
		m.remove(inst.Name, StateEnded)
		return
	}
	if proc == nil {
		return
	}
	if err := proc.Stop(); err != nil {
		m.logger.Warnf("stop request failed", map[string]any{
			"stream": inst.Name,
			"error":  err.Error(),
		})
	}
}

// Active returns the number of instances in the active set.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Has reports whether the stream currently has an active instance.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.instances[name]
	return ok
}

func (m *Manager) recordActive() {
	if m.metrics == nil {
		return
	}
	m.mu.Lock()
	n := len(m.instances)
	m.mu.Unlock()
	m.metrics.RecordActiveInstances(n)
}
