package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
)

// JournalConfig holds configuration for the event journal.
type JournalConfig struct {
	// Path is the journal file. Rotated files live beside it.
	Path string

	// MaxSizeBytes rotates the journal once it grows past this size.
	// Defaults to 16 MiB if <= 0.
	MaxSizeBytes int64

	// Keep is how many rotated (compressed) files are retained.
	// Defaults to 5 if <= 0.
	Keep int
}

// DefaultJournalConfig returns a JournalConfig with sensible defaults.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		MaxSizeBytes: 16 * 1024 * 1024,
		Keep:         5,
	}
}

// Journal is an append-only NDJSON event log with size-based rotation.
// Rotated files are gzip-compressed and pruned to a configured count.
// Implements Sink.
type Journal struct {
	config  JournalConfig
	logger  *logging.Logger
	metrics *metrics.EventMetrics

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewJournal opens (or creates) the journal file for appending.
func NewJournal(config JournalConfig, logger *logging.Logger) (*Journal, error) {
	if config.MaxSizeBytes <= 0 {
		config.MaxSizeBytes = DefaultJournalConfig().MaxSizeBytes
	}
	if config.Keep <= 0 {
		config.Keep = DefaultJournalConfig().Keep
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("events: create journal dir: %w", err)
	}
	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: open journal %s: %w", config.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("events: stat journal %s: %w", config.Path, err)
	}

	return &Journal{
		config: config,
		logger: logger.WithComponent("journal"),
		file:   file,
		size:   info.Size(),
	}, nil
}

// WithMetrics attaches event metrics.
func (j *Journal) WithMetrics(em *metrics.EventMetrics) *Journal {
	j.metrics = em
	return j
}

// Publish implements Sink.
func (j *Journal) Publish(_ context.Context, ev Event) error {
	return j.Append(ev)
}

// Append writes one event as a JSON line.
func (j *Journal) Append(ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.size >= j.config.MaxSizeBytes {
		if err := j.rotateLocked(); err != nil {
			j.logger.Errorf("journal rotation failed", map[string]any{
				"path":  j.config.Path,
				"error": err.Error(),
			})
			// Keep appending to the oversized file rather than losing events.
		}
	}

	n, err := j.file.Write(line)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("events: append journal: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// rotateLocked closes the current file, moves it aside under a timestamped
// name, compresses it, reopens a fresh journal, and prunes old rotations.
func (j *Journal) rotateLocked() error {
	if err := j.file.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", j.config.Path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(j.config.Path, rotated); err != nil {
		return err
	}

	file, err := os.OpenFile(j.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = file
	j.size = 0

	if err := compressFile(rotated); err != nil {
		j.logger.Warnf("rotated journal compression failed", map[string]any{
			"path":  rotated,
			"error": err.Error(),
		})
	}
	if err := j.pruneRotated(); err != nil {
		j.logger.Warnf("rotated journal prune failed", map[string]any{
			"path":  j.config.Path,
			"error": err.Error(),
		})
	}

	if j.metrics != nil {
		j.metrics.RecordJournalRotation()
	}
	j.logger.Infof("journal rotated", map[string]any{"path": rotated + ".gz"})
	return nil
}

// compressFile gzips src into src.gz and removes the original.
func compressFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// pruneRotated removes the oldest compressed rotations beyond Keep. The
// timestamped names sort lexicographically in age order.
func (j *Journal) pruneRotated() error {
	dir := filepath.Dir(j.config.Path)
	base := filepath.Base(j.config.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var rotated []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".gz") {
			rotated = append(rotated, name)
		}
	}
	if len(rotated) <= j.config.Keep {
		return nil
	}

	sort.Strings(rotated)
	for _, name := range rotated[:len(rotated)-j.config.Keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
