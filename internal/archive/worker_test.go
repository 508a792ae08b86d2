package archive

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vigil-io/vigil/internal/events"
	"github.com/vigil-io/vigil/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

type mockUploader struct {
	mu       sync.Mutex
	uploaded []string
	err      error
	block    chan struct{}
	done     chan string
}

func newMockUploader() *mockUploader {
	return &mockUploader{done: make(chan string, 16)}
}

func (m *mockUploader) Upload(ctx context.Context, localPath string) (string, int64, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	m.mu.Lock()
	m.uploaded = append(m.uploaded, localPath)
	m.mu.Unlock()
	m.done <- localPath
	if m.err != nil {
		return "", 0, m.err
	}
	return "archive/" + localPath, 42, nil
}

func (m *mockUploader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploaded)
}

func waitUpload(t *testing.T, m *mockUploader) string {
	t.Helper()
	select {
	case p := <-m.done:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for upload")
		return ""
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) snapshot() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

func TestWorkerUploadsQueuedSegments(t *testing.T) {
	uploader := newMockUploader()
	worker := NewWorker(uploader, DefaultWorkerConfig(), testLogger())
	worker.Start()
	defer worker.Stop()

	if !worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/a.mp4"}) {
		t.Fatal("Enqueue should accept with room in the queue")
	}
	if !worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/b.mp4"}) {
		t.Fatal("Enqueue should accept with room in the queue")
	}

	first := waitUpload(t, uploader)
	second := waitUpload(t, uploader)
	if first != "/data/cam1/a.mp4" || second != "/data/cam1/b.mp4" {
		t.Errorf("uploads out of order: %q then %q", first, second)
	}
}

func TestWorkerDropsWhenQueueFull(t *testing.T) {
	uploader := newMockUploader()
	uploader.block = make(chan struct{})
	worker := NewWorker(uploader, WorkerConfig{QueueSize: 1}, testLogger())
	worker.Start()
	defer func() {
		close(uploader.block)
		worker.Stop()
	}()

	// First task is picked up by the (blocked) loop, second fills the
	// queue, third must drop.
	worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/a.mp4"})
	time.Sleep(50 * time.Millisecond)
	worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/b.mp4"})

	if worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/c.mp4"}) {
		t.Error("Enqueue should report a drop when the queue is full")
	}
}

func TestWorkerUploadFailureIsNotFatal(t *testing.T) {
	uploader := newMockUploader()
	uploader.err = errors.New("bucket unavailable")
	worker := NewWorker(uploader, DefaultWorkerConfig(), testLogger())
	worker.Start()
	defer worker.Stop()

	worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/a.mp4"})
	waitUpload(t, uploader)

	// The loop must survive the failure and process the next task.
	uploader.err = nil
	worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/b.mp4"})
	if got := waitUpload(t, uploader); got != "/data/cam1/b.mp4" {
		t.Errorf("expected second upload after failure, got %q", got)
	}
}

func TestWorkerPublishesArchivedEvent(t *testing.T) {
	uploader := newMockUploader()
	sink := &captureSink{}
	worker := NewWorker(uploader, DefaultWorkerConfig(), testLogger()).WithSink(sink)
	worker.Start()
	defer worker.Stop()

	worker.Enqueue(Task{Stream: "cam1", Path: "/data/cam1/a.mp4"})
	waitUpload(t, uploader)

	deadline := time.Now().Add(5 * time.Second)
	for len(sink.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for archived event")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ev := sink.snapshot()[0]
	if ev.Type != events.TypeSegmentArchived || ev.Stream != "cam1" || ev.Path != "/data/cam1/a.mp4" {
		t.Errorf("unexpected archived event: %+v", ev)
	}
}

func TestWorkerStartStopIdempotent(t *testing.T) {
	uploader := newMockUploader()
	worker := NewWorker(uploader, DefaultWorkerConfig(), testLogger())

	worker.Start()
	worker.Start()
	worker.Stop()
	worker.Stop()

	if uploader.count() != 0 {
		t.Errorf("expected no uploads, got %d", uploader.count())
	}
}
