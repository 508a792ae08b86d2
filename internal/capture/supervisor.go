// Package capture orchestrates the per-stream recording loops.
//
// The Supervisor is the single consumer of the recorder's event channel;
// every capture decision (track, sweep, archive, relaunch) is made there,
// one event at a time, so each mutation completes before the next event is
// processed. Process-exit watchers and the periodic sweep worker run on
// their own goroutines but only feed serialized inputs into this loop.
package capture

import (
	"context"
	"time"

	"github.com/vigil-io/vigil/internal/archive"
	"github.com/vigil-io/vigil/internal/events"
	"github.com/vigil-io/vigil/internal/layout"
	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/reconcile"
	"github.com/vigil-io/vigil/internal/recorder"
	"github.com/vigil-io/vigil/internal/retention"
	"github.com/vigil-io/vigil/internal/stream"
)

// Config configures the supervisor.
type Config struct {
	// Root is the destination root for all segment files.
	Root string

	// Container is the output format for streams that do not set one.
	// Default: "mp4".
	Container string

	// BackoffInitialMs is the first restart delay after a failure.
	// Default: 3000.
	BackoffInitialMs int64

	// BackoffMaxMs caps the restart delay. Default: 60000.
	BackoffMaxMs int64

	// HealthyResetMs resets the backoff counter once a stream has been
	// running this long. Default: 30000.
	HealthyResetMs int64

	// ShutdownTimeoutMs bounds the terminal-event drain on shutdown.
	// Default: 30000.
	ShutdownTimeoutMs int64
}

// DefaultConfig returns default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		Container:         "mp4",
		BackoffInitialMs:  3000,
		BackoffMaxMs:      60000,
		HealthyResetMs:    30000,
		ShutdownTimeoutMs: 30000,
	}
}

// backoffState is per-stream restart bookkeeping, touched only from the
// supervisor loop.
type backoffState struct {
	attempts     int
	runningSince time.Time
}

// Supervisor runs the unbounded capture loop for every configured stream.
type Supervisor struct {
	catalog  *stream.Catalog
	manager  *recorder.Manager
	tracker  *retention.Tracker
	scanner  *reconcile.Scanner
	archiver *archive.Worker
	sink     events.Sink
	config   Config
	logger   *logging.Logger

	restartCh chan string
	backoff   map[string]*backoffState
	nowFn     func() time.Time
	heartbeat func()
}

// NewSupervisor wires the capture loop over its collaborators. The scanner
// is optional (nil skips startup reconciliation), as is the archiver.
func NewSupervisor(
	catalog *stream.Catalog,
	manager *recorder.Manager,
	tracker *retention.Tracker,
	scanner *reconcile.Scanner,
	config Config,
	logger *logging.Logger,
) *Supervisor {
	defaults := DefaultConfig()
	if config.Container == "" {
		config.Container = defaults.Container
	}
	if config.BackoffInitialMs <= 0 {
		config.BackoffInitialMs = defaults.BackoffInitialMs
	}
	if config.BackoffMaxMs <= 0 {
		config.BackoffMaxMs = defaults.BackoffMaxMs
	}
	if config.HealthyResetMs <= 0 {
		config.HealthyResetMs = defaults.HealthyResetMs
	}
	if config.ShutdownTimeoutMs <= 0 {
		config.ShutdownTimeoutMs = defaults.ShutdownTimeoutMs
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Supervisor{
		catalog:   catalog,
		manager:   manager,
		tracker:   tracker,
		scanner:   scanner,
		sink:      events.Nop{},
		config:    config,
		logger:    logger.WithComponent("capture"),
		restartCh: make(chan string, catalog.Len()+1),
		backoff:   make(map[string]*backoffState),
		nowFn:     time.Now,
	}
}

// WithArchiver queues each completed segment for upload.
func (s *Supervisor) WithArchiver(w *archive.Worker) *Supervisor {
	s.archiver = w
	return s
}

// WithSink publishes lifecycle events. Defaults to a no-op sink.
func (s *Supervisor) WithSink(sink events.Sink) *Supervisor {
	s.sink = sink
	return s
}

// WithNowFunc overrides the clock. For tests.
func (s *Supervisor) WithNowFunc(now func() time.Time) *Supervisor {
	s.nowFn = now
	return s
}

// WithHeartbeat registers a callback invoked periodically from the event
// loop, used to report loop liveness to the health server.
func (s *Supervisor) WithHeartbeat(fn func()) *Supervisor {
	s.heartbeat = fn
	return s
}

// Run reconciles leftover files, boots every stream in configuration
// order, and then consumes lifecycle events until ctx is cancelled. On
// cancellation all instances are stopped and their terminal events drained
// before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.scanner != nil {
		if _, err := s.scanner.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Errorf("startup reconciliation failed", map[string]any{
				"error": err.Error(),
			})
		}
	}

	for _, spec := range s.catalog.All() {
		s.launch(ctx, spec)
	}

	beat := time.NewTicker(10 * time.Second)
	defer beat.Stop()
	if s.heartbeat != nil {
		s.heartbeat()
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-beat.C:
			if s.heartbeat != nil {
				s.heartbeat()
			}
		case name := <-s.restartCh:
			spec, err := s.catalog.ByName(name)
			if err != nil {
				s.logger.Errorf("restart for unknown stream dropped", map[string]any{
					"stream": name,
				})
				continue
			}
			s.launch(ctx, spec)
		case ev := <-s.manager.Events():
			s.handle(ctx, ev)
		}
	}
}

// launch allocates the next segment path and starts one capture. Any
// failure goes through the same backoff path as a process failure, so a
// stream is never silently abandoned.
func (s *Supervisor) launch(ctx context.Context, spec stream.Spec) {
	if ctx.Err() != nil {
		return
	}

	destination, err := layout.Allocate(s.config.Root, spec.Name, s.extFor(spec), s.nowFn())
	if err != nil {
		s.logger.Errorf("segment allocation failed, cycle skipped", map[string]any{
			"stream": spec.Name,
			"error":  err.Error(),
		})
		s.scheduleRestart(ctx, spec.Name)
		return
	}

	if err := s.manager.Add(spec, destination); err != nil {
		// A duplicate means a previous instance has not reached its
		// terminal event yet; its terminal will relaunch the stream.
		s.logger.Warnf("stream not relaunched", map[string]any{
			"stream": spec.Name,
			"error":  err.Error(),
		})
		return
	}
	s.manager.RunOne(ctx, spec.Name)
}

func (s *Supervisor) handle(ctx context.Context, ev recorder.Event) {
	switch ev.Kind {
	case recorder.EventStarted:
		s.onStarted(ctx, ev)
	case recorder.EventEnded:
		s.onEnded(ctx, ev)
	case recorder.EventFailed:
		s.onFailed(ctx, ev)
	}
}

func (s *Supervisor) onStarted(ctx context.Context, ev recorder.Event) {
	// A stat failure here is tolerated: the file is re-tracked on the
	// ended event and caught by the next reconciliation regardless.
	_ = s.tracker.Track(ev.Destination, s.storageDuration(ev.Spec))
	s.state(ev.Spec.Name).runningSince = s.nowFn()
	s.publish(ctx, events.TypeSegmentStarted, ev, "")
}

func (s *Supervisor) onEnded(ctx context.Context, ev recorder.Event) {
	// Re-track covers files that materialized after the started event.
	_ = s.tracker.Track(ev.Destination, s.storageDuration(ev.Spec))
	s.tracker.Sweep()

	if s.archiver != nil {
		s.archiver.Enqueue(archive.Task{Stream: ev.Spec.Name, Path: ev.Destination})
	}
	s.publish(ctx, events.TypeSegmentEnded, ev, "")

	// A clean segment end is proof of health.
	st := s.state(ev.Spec.Name)
	st.attempts = 0
	st.runningSince = time.Time{}

	s.launch(ctx, ev.Spec)
}

func (s *Supervisor) onFailed(ctx context.Context, ev recorder.Event) {
	diagnostic := ev.Diagnostic
	if diagnostic == "" && ev.Err != nil {
		diagnostic = ev.Err.Error()
	}
	s.publish(ctx, events.TypeSegmentFailed, ev, diagnostic)
	s.scheduleRestart(ctx, ev.Spec.Name)
}

// scheduleRestart arms a capped exponential backoff timer that feeds the
// stream name back into the supervisor loop. The loop never gives up on a
// stream permanently.
func (s *Supervisor) scheduleRestart(ctx context.Context, name string) {
	st := s.state(name)
	if !st.runningSince.IsZero() &&
		s.nowFn().Sub(st.runningSince) >= time.Duration(s.config.HealthyResetMs)*time.Millisecond {
		st.attempts = 0
	}
	st.runningSince = time.Time{}

	delay := s.backoffDelay(st.attempts)
	st.attempts++

	s.logger.Warnf("stream restart scheduled", map[string]any{
		"stream":  name,
		"delay":   delay.String(),
		"attempt": st.attempts,
	})

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case s.restartCh <- name:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}

func (s *Supervisor) backoffDelay(attempts int) time.Duration {
	delay := time.Duration(s.config.BackoffInitialMs) * time.Millisecond
	max := time.Duration(s.config.BackoffMaxMs) * time.Millisecond
	for i := 0; i < attempts && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}

// shutdown stops every active instance and drains terminal events, bounded
// by the shutdown timeout. No sweep and no relaunch happen on this path.
func (s *Supervisor) shutdown() {
	s.manager.Stop()

	deadline := time.NewTimer(time.Duration(s.config.ShutdownTimeoutMs) * time.Millisecond)
	defer deadline.Stop()

	// The manager drops an instance from its active set just before the
	// terminal event is queued, so an empty set can still have a terminal
	// in flight. After the set empties, keep draining until the channel
	// stays quiet.
	for {
		if s.manager.Active() == 0 {
			select {
			case ev := <-s.manager.Events():
				s.exportTerminal(ev)
				continue
			case <-time.After(100 * time.Millisecond):
			case <-deadline.C:
			}
			s.logger.Infof("capture stopped", nil)
			return
		}
		select {
		case ev := <-s.manager.Events():
			s.exportTerminal(ev)
		case <-deadline.C:
			s.logger.Errorf("shutdown drain timed out", map[string]any{
				"active": s.manager.Active(),
			})
			return
		}
	}
}

// exportTerminal publishes a drained terminal event so the journal records
// how the run ended. Started events carry nothing worth exporting here.
func (s *Supervisor) exportTerminal(ev recorder.Event) {
	if ev.Kind == recorder.EventStarted {
		return
	}
	var diagnostic string
	kind := events.TypeSegmentEnded
	if ev.Kind == recorder.EventFailed {
		kind = events.TypeSegmentFailed
		diagnostic = ev.Diagnostic
	}
	s.publish(context.Background(), kind, ev, diagnostic)
}

func (s *Supervisor) publish(ctx context.Context, t events.Type, ev recorder.Event, diagnostic string) {
	err := s.sink.Publish(ctx, events.Event{
		Type:   t,
		Stream: ev.Spec.Name,
		Path:   ev.Destination,
		At:     s.nowFn().UTC(),
		RunID:  ev.RunID,
		Error:  diagnostic,
	})
	if err != nil {
		s.logger.Warnf("event publish failed", map[string]any{
			"type":   string(t),
			"stream": ev.Spec.Name,
			"error":  err.Error(),
		})
	}
}

func (s *Supervisor) state(name string) *backoffState {
	st, ok := s.backoff[name]
	if !ok {
		st = &backoffState{}
		s.backoff[name] = st
	}
	return st
}

func (s *Supervisor) extFor(spec stream.Spec) string {
	if spec.Container != "" {
		return spec.Container
	}
	return s.config.Container
}

func (s *Supervisor) storageDuration(spec stream.Spec) time.Duration {
	return time.Duration(spec.StorageDurationSec) * time.Second
}
