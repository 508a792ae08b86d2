// Package retention tracks on-disk segment files and deletes those whose
// age exceeds their per-stream retention window.
package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
)

// Common errors.
var (
	// ErrNotRegularFile is returned by Track for paths that do not resolve
	// to a regular file.
	ErrNotRegularFile = errors.New("retention: not a regular file")
)

// TrackedFile is one monitored on-disk segment.
type TrackedFile struct {
	// Path is the unique key.
	Path string

	// StorageDuration is how long the file is kept after creation.
	// Zero means eligible for deletion on the next sweep.
	StorageDuration time.Duration

	// CreatedAt is captured once at Track time from the file's own
	// metadata, never re-read. Using file metadata instead of "now" keeps
	// retention correct for files recovered from a previous run.
	CreatedAt time.Time

	// deleteFailures counts consecutive failed deletion attempts.
	deleteFailures int
}

// TrackerConfig configures the tracked-file set.
type TrackerConfig struct {
	// MaxDeleteAttempts bounds consecutive delete failures per file before
	// the entry is dropped with an escalation log. Default: 5.
	MaxDeleteAttempts int
}

// DefaultTrackerConfig returns default configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDeleteAttempts: 5,
	}
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	// Evaluated is the number of entries in the sweep snapshot.
	Evaluated int
	// Removed is the number of files deleted.
	Removed int
	// Failed is the number of deletion attempts that failed.
	Failed int
}

// Tracker owns the tracked-file collection. All mutation goes through its
// operations; there is no ambient registry.
type Tracker struct {
	config     TrackerConfig
	logger     *logging.Logger
	metrics    *metrics.RetentionMetrics
	nowFn      func() time.Time
	removeHook func(path string)

	mu    sync.Mutex
	files map[string]*TrackedFile
}

// NewTracker creates an empty tracker.
func NewTracker(config TrackerConfig, logger *logging.Logger) *Tracker {
	if config.MaxDeleteAttempts <= 0 {
		config.MaxDeleteAttempts = 5
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Tracker{
		config: config,
		logger: logger.WithComponent("retention"),
		nowFn:  time.Now,
		files:  make(map[string]*TrackedFile),
	}
}

// WithMetrics attaches retention metrics.
func (t *Tracker) WithMetrics(rm *metrics.RetentionMetrics) *Tracker {
	t.metrics = rm
	return t
}

// WithNowFunc overrides the clock. For tests.
func (t *Tracker) WithNowFunc(now func() time.Time) *Tracker {
	t.nowFn = now
	return t
}

// WithRemoveHook registers a callback invoked after each successful file
// deletion, regardless of which sweep path triggered it. Call before any
// sweeps run.
func (t *Tracker) WithRemoveHook(hook func(path string)) *Tracker {
	t.removeHook = hook
	return t
}

// Track stats the path and records it with a creation time taken from the
// file's own metadata. Non-regular files are rejected. Re-tracking an
// already-tracked path refreshes the entry; for an unchanged segment this
// is a harmless no-op.
func (t *Tracker) Track(path string, storageDuration time.Duration) error {
	info, err := os.Stat(path)
	if err != nil {
		t.logger.Warnf("stat failed, file not tracked", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("retention: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		t.logger.Warnf("not a regular file, not tracked", map[string]any{"path": path})
		return fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	// Segments are write-once, so the modification time is the closest
	// portable stand-in for creation time.
	entry := &TrackedFile{
		Path:            path,
		StorageDuration: storageDuration,
		CreatedAt:       info.ModTime(),
	}

	t.mu.Lock()
	t.files[path] = entry
	n := len(t.files)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordTrackedFiles(n)
	}
	t.logger.Debugf("file tracked", map[string]any{
		"path":            path,
		"storageDuration": storageDuration.String(),
	})
	return nil
}

// Remove deletes the underlying file and drops the entry. A file that is
// already gone drops the entry unconditionally. Any other deletion failure
// leaves the entry tracked for retry by future sweeps, bounded by
// MaxDeleteAttempts, after which the entry is dropped with an escalation
// log so a permanently undeletable file cannot busy-loop the sweeper.
func (t *Tracker) Remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		t.drop(path)
		if err == nil {
			if t.metrics != nil {
				t.metrics.RecordFileRemoved()
			}
			t.logger.Infof("file removed", map[string]any{"path": path})
			if t.removeHook != nil {
				t.removeHook(path)
			}
		} else {
			t.logger.Debugf("file already gone, entry dropped", map[string]any{"path": path})
		}
		return nil
	}

	if t.metrics != nil {
		t.metrics.RecordRemoveFailure()
	}

	t.mu.Lock()
	entry, tracked := t.files[path]
	var failures int
	if tracked {
		entry.deleteFailures++
		failures = entry.deleteFailures
	}
	t.mu.Unlock()

	if tracked && failures >= t.config.MaxDeleteAttempts {
		t.drop(path)
		if t.metrics != nil {
			t.metrics.RecordEntryDropped()
		}
		t.logger.Errorf("delete retries exhausted, entry dropped", map[string]any{
			"path":     path,
			"attempts": failures,
			"error":    err.Error(),
		})
		return fmt.Errorf("retention: delete %s: %w", path, err)
	}

	t.logger.Warnf("delete failed, will retry on next sweep", map[string]any{
		"path":     path,
		"attempts": failures,
		"error":    err.Error(),
	})
	return fmt.Errorf("retention: delete %s: %w", path, err)
}

func (t *Tracker) drop(path string) {
	t.mu.Lock()
	delete(t.files, path)
	n := len(t.files)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordTrackedFiles(n)
	}
}

// Sweep evaluates a snapshot of tracked files and removes each whose age
// strictly exceeds its retention window. The snapshot makes concurrent
// mutation safe: entries removed mid-sweep are neither skipped nor
// double-processed.
func (t *Tracker) Sweep() SweepResult {
	start := time.Now()
	now := t.nowFn()

	t.mu.Lock()
	snapshot := make([]TrackedFile, 0, len(t.files))
	for _, entry := range t.files {
		snapshot = append(snapshot, *entry)
	}
	t.mu.Unlock()

	result := SweepResult{Evaluated: len(snapshot)}
	for _, entry := range snapshot {
		// An entry may have been removed since the snapshot was taken.
		if !t.Tracked(entry.Path) {
			continue
		}
		if now.Sub(entry.CreatedAt) <= entry.StorageDuration {
			continue
		}
		if err := t.Remove(entry.Path); err != nil {
			result.Failed++
			continue
		}
		result.Removed++
	}

	if t.metrics != nil {
		t.metrics.RecordSweepDuration(time.Since(start).Seconds())
	}
	if result.Removed > 0 || result.Failed > 0 {
		t.logger.Infof("sweep complete", map[string]any{
			"evaluated": result.Evaluated,
			"removed":   result.Removed,
			"failed":    result.Failed,
		})
	}
	return result
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// Tracked reports whether the path is currently tracked.
func (t *Tracker) Tracked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.files[path]
	return ok
}

// Files returns a copy of all tracked entries, for inspection and tests.
func (t *Tracker) Files() []TrackedFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackedFile, 0, len(t.files))
	for _, entry := range t.files {
		out = append(out, *entry)
	}
	return out
}
