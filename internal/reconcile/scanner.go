// Package reconcile recovers pre-existing segment files into retention
// tracking at startup.
//
// The destination tree is the only persisted state the daemon owns, so a
// restart walks it, maps every file back to its owning stream by the first
// path element, and seeds the tracker. Files whose stream is no longer
// configured get a zero retention window and are removed on the first sweep.
package reconcile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vigil-io/vigil/internal/layout"
	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
	"github.com/vigil-io/vigil/internal/retention"
	"github.com/vigil-io/vigil/internal/stream"
)

// Stats summarizes one reconciliation pass.
type Stats struct {
	// FilesTracked is the number of files seeded into the tracker.
	FilesTracked int
	// FilesSkipped is the number of files that could not be tracked.
	FilesSkipped int
	// Removed is the number of files deleted by the post-scan sweep.
	Removed int
	// DirsPruned is the number of now-empty directories removed.
	DirsPruned int
}

// Scanner walks the destination root and seeds the retention tracker.
type Scanner struct {
	root    string
	catalog *stream.Catalog
	tracker *retention.Tracker
	logger  *logging.Logger
	metrics *metrics.RetentionMetrics
}

// NewScanner creates a reconciliation scanner.
func NewScanner(root string, catalog *stream.Catalog, tracker *retention.Tracker, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Scanner{
		root:    root,
		catalog: catalog,
		tracker: tracker,
		logger:  logger.WithComponent("reconcile"),
	}
}

// WithMetrics attaches retention metrics.
func (s *Scanner) WithMetrics(rm *metrics.RetentionMetrics) *Scanner {
	s.metrics = rm
	return s
}

// Run walks the tree, seeds the tracker, sweeps once, and prunes empty
// directories left behind by deletions. A missing root is not an error:
// there is simply nothing to reconcile yet.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if _, err := os.Stat(s.root); err != nil {
		if os.IsNotExist(err) {
			s.logger.Debugf("destination root absent, nothing to reconcile", map[string]any{"root": s.root})
			return stats, nil
		}
		return stats, fmt.Errorf("reconcile: stat root %s: %w", s.root, err)
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warnf("walk error, subtree skipped", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		duration := s.durationFor(path)
		if err := s.tracker.Track(path, duration); err != nil {
			stats.FilesSkipped++
			return nil
		}
		stats.FilesTracked++
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("reconcile: walk %s: %w", s.root, err)
	}

	if s.metrics != nil {
		s.metrics.RecordFilesReconciled(stats.FilesTracked)
	}

	result := s.tracker.Sweep()
	stats.Removed = result.Removed

	pruned, err := s.pruneEmptyDirs(s.root)
	if err != nil {
		s.logger.Warnf("empty-directory prune incomplete", map[string]any{
			"root":  s.root,
			"error": err.Error(),
		})
	}
	stats.DirsPruned = pruned

	s.logger.Infof("reconciliation complete", map[string]any{
		"tracked": stats.FilesTracked,
		"skipped": stats.FilesSkipped,
		"removed": stats.Removed,
		"pruned":  stats.DirsPruned,
	})
	return stats, nil
}

// durationFor resolves the retention window for a discovered file. Files
// with no recoverable stream, or a stream that is no longer configured,
// fall back to zero and are removed on the next sweep.
func (s *Scanner) durationFor(path string) time.Duration {
	name, err := layout.StreamForPath(s.root, path)
	if err != nil {
		s.logger.Warnf("no owning stream, scheduling immediate removal", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return 0
	}
	if !s.catalog.Has(name) {
		s.logger.Warnf("stream not configured, scheduling immediate removal", map[string]any{
			"path":   path,
			"stream": name,
		})
		return 0
	}
	return time.Duration(s.catalog.StorageDuration(name)) * time.Second
}

// pruneEmptyDirs removes empty directories bottom-up. The root itself is
// always kept.
func (s *Scanner) pruneEmptyDirs(dir string) (int, error) {
	pruned := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		n, err := s.pruneEmptyDirs(sub)
		if err != nil {
			return pruned, err
		}
		pruned += n

		remaining, err := os.ReadDir(sub)
		if err != nil {
			return pruned, err
		}
		if len(remaining) == 0 {
			if err := os.Remove(sub); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
