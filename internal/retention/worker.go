package retention

import (
	"sync"
	"time"
)

// WorkerConfig configures the periodic sweep worker.
type WorkerConfig struct {
	// SweepIntervalMs is the interval between sweeps in milliseconds.
	// Default: 60000 (1 minute).
	SweepIntervalMs int64
}

// DefaultWorkerConfig returns default configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		SweepIntervalMs: 60000,
	}
}

// Worker drives time-based retention sweeps. The sweep contract itself is
// event-triggered (the orchestrator sweeps after each newly tracked file);
// the worker adds a periodic pass on top so expiry does not depend on new
// segments arriving.
type Worker struct {
	tracker *Tracker
	config  WorkerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a periodic sweep worker over the tracker.
func NewWorker(tracker *Tracker, config WorkerConfig) *Worker {
	if config.SweepIntervalMs <= 0 {
		config.SweepIntervalMs = 60000
	}
	return &Worker{
		tracker: tracker,
		config:  config,
	}
}

// Start begins the worker background loop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

// Stop stops the worker and waits for completion.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// run is the main worker loop.
func (w *Worker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(time.Duration(w.config.SweepIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	w.tracker.Sweep()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tracker.Sweep()
		}
	}
}

// SweepOnce performs a single sweep synchronously.
func (w *Worker) SweepOnce() SweepResult {
	return w.tracker.Sweep()
}
