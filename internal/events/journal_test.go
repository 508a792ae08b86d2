package events

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/vigil-io/vigil/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func newTestJournal(t *testing.T, config JournalConfig) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.ndjson")
	config.Path = path
	j, err := NewJournal(config, testLogger())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestJournalAppendsJSONLines(t *testing.T) {
	j, path := newTestJournal(t, DefaultJournalConfig())

	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Type: TypeSegmentStarted, Stream: "cam1", Path: "/data/cam1/a.mp4", At: at, RunID: "r1"},
		{Type: TypeSegmentEnded, Stream: "cam1", Path: "/data/cam1/a.mp4", At: at.Add(time.Minute), RunID: "r1"},
		{Type: TypeSegmentFailed, Stream: "cam2", At: at, RunID: "r2", Error: "connection refused"},
	}
	for _, ev := range events {
		if err := j.Append(ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var got Event
	if err := json.Unmarshal([]byte(lines[2]), &got); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if got.Type != TypeSegmentFailed || got.Stream != "cam2" || got.Error != "connection refused" {
		t.Errorf("unexpected round-trip: %+v", got)
	}
	if strings.Contains(lines[0], `"error"`) {
		t.Error("empty error field should be omitted")
	}
}

func TestJournalRotatesAndCompresses(t *testing.T) {
	j, path := newTestJournal(t, JournalConfig{MaxSizeBytes: 64, Keep: 5})

	// Each event is well over 64 bytes, so every append after the first
	// rotates first.
	for i := 0; i < 3; i++ {
		if err := j.Append(testEvent(TypeSegmentEnded)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	rotated := rotatedFiles(t, path)
	if len(rotated) != 2 {
		t.Fatalf("expected 2 rotated files, got %d: %v", len(rotated), rotated)
	}

	// Rotated content must decompress back to the original NDJSON line.
	f, err := os.Open(rotated[0])
	if err != nil {
		t.Fatalf("open rotated: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &ev); err != nil {
		t.Fatalf("rotated line not valid JSON: %v", err)
	}
	if ev.Type != TypeSegmentEnded {
		t.Errorf("unexpected rotated event type %q", ev.Type)
	}

	// The live journal holds only the latest event.
	if lines := readLines(t, path); len(lines) != 1 {
		t.Errorf("expected 1 live line after rotation, got %d", len(lines))
	}
}

func TestJournalPrunesOldRotations(t *testing.T) {
	j, path := newTestJournal(t, JournalConfig{MaxSizeBytes: 1, Keep: 2})

	for i := 0; i < 6; i++ {
		if err := j.Append(testEvent(TypeSegmentStarted)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		// Rotation names are timestamped to nanoseconds; a tiny pause keeps
		// them unique on coarse-clock filesystems.
		time.Sleep(2 * time.Millisecond)
	}

	rotated := rotatedFiles(t, path)
	if len(rotated) != 2 {
		t.Errorf("expected prune to keep 2 rotated files, got %d: %v", len(rotated), rotated)
	}
}

func TestJournalReopenContinuesAppending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	config := DefaultJournalConfig()
	config.Path = path

	j, err := NewJournal(config, testLogger())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	if err := j.Append(testEvent(TypeSegmentStarted)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	j.Close()

	j2, err := NewJournal(config, testLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j2.Close()
	if err := j2.Append(testEvent(TypeSegmentEnded)); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}

	if lines := readLines(t, path); len(lines) != 2 {
		t.Errorf("expected 2 lines across reopen, got %d", len(lines))
	}
}

func rotatedFiles(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(path + ".*.gz")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}
