// Package layout derives and parses the on-disk segment tree.
//
// Every segment lives at
//
//	<root>/<stream>/<year>/<month>/<day>/<HH:MM:SS>.<ext>
//
// with non-padded month and day components and a zero-padded time of day.
// The first path element under the root names the owning stream; the
// reconciliation scanner relies on that to recover stream ownership of
// files left behind by a previous run.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Common errors.
var (
	ErrOutsideRoot = errors.New("layout: path outside destination root")
	ErrNoStream    = errors.New("layout: path has no stream component")
)

// segmentTimeFormat is the time-of-day filename format.
const segmentTimeFormat = "15:04:05"

// SegmentDir returns the date-bucketed directory for a stream at time t.
func SegmentDir(root, stream string, t time.Time) string {
	return filepath.Join(
		root,
		stream,
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%d", int(t.Month())),
		fmt.Sprintf("%d", t.Day()),
	)
}

// SegmentName returns the time-of-day filename with the given extension.
// A leading dot on ext is tolerated.
func SegmentName(t time.Time, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return t.Format(segmentTimeFormat) + "." + ext
}

// SegmentPath returns the full segment path without touching the filesystem.
func SegmentPath(root, stream, ext string, t time.Time) string {
	return filepath.Join(SegmentDir(root, stream, t), SegmentName(t, ext))
}

// EnsureDir creates dir and any missing parents. Creating an existing
// directory is not an error, so concurrent or repeated calls for the same
// day are safe.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("layout: create %s: %w", dir, err)
	}
	return nil
}

// Allocate ensures the date bucket for the stream exists and returns the
// full path of the next segment. The caller decides what a failure means
// for its cycle; allocation failure for one stream never affects others.
func Allocate(root, stream, ext string, t time.Time) (string, error) {
	dir := SegmentDir(root, stream, t)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, SegmentName(t, ext)), nil
}

// StreamForPath recovers the owning stream name from a segment path: the
// first path element after the root. Paths outside the root, or lying
// directly in it, carry no stream and are rejected.
func StreamForPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	parts := strings.Split(rel, string(filepath.Separator))
	// A file directly under the root has no stream directory.
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %s", ErrNoStream, path)
	}
	return parts[0], nil
}
