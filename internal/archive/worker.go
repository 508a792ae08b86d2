package archive

import (
	"context"
	"sync"
	"time"

	"github.com/vigil-io/vigil/internal/events"
	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
)

// Uploader copies a local segment into remote storage.
type Uploader interface {
	// Upload stores the file and returns the object key and byte count.
	Upload(ctx context.Context, localPath string) (key string, size int64, err error)
}

// Task is one segment queued for upload.
type Task struct {
	Stream string
	Path   string
}

// WorkerConfig configures the archive worker.
type WorkerConfig struct {
	// QueueSize bounds the upload queue. Default: 128.
	QueueSize int

	// UploadTimeoutMs bounds a single upload attempt in milliseconds.
	// Default: 300000 (5 minutes).
	UploadTimeoutMs int64
}

// DefaultWorkerConfig returns default configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		QueueSize:       128,
		UploadTimeoutMs: 300000,
	}
}

// Worker drains a bounded queue of completed segments into the uploader.
// Enqueue never blocks: when uploads fall behind, new segments are dropped
// and counted rather than stalling the capture loop.
type Worker struct {
	uploader Uploader
	config   WorkerConfig
	logger   *logging.Logger
	metrics  *metrics.ArchiveMetrics
	sink     events.Sink

	queue chan Task

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates an archive worker over the uploader.
func NewWorker(uploader Uploader, config WorkerConfig, logger *logging.Logger) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultWorkerConfig().QueueSize
	}
	if config.UploadTimeoutMs <= 0 {
		config.UploadTimeoutMs = DefaultWorkerConfig().UploadTimeoutMs
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Worker{
		uploader: uploader,
		config:   config,
		logger:   logger.WithComponent("archive"),
		queue:    make(chan Task, config.QueueSize),
	}
}

// WithMetrics attaches archive metrics.
func (w *Worker) WithMetrics(am *metrics.ArchiveMetrics) *Worker {
	w.metrics = am
	return w
}

// WithSink publishes a segment.archived event after each successful upload.
func (w *Worker) WithSink(sink events.Sink) *Worker {
	w.sink = sink
	return w
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

// Stop stops the worker and waits for the in-flight upload to finish.
// Queued tasks not yet started are abandoned.
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

// Enqueue queues a segment for upload without blocking. Returns false if
// the queue is full and the task was dropped.
func (w *Worker) Enqueue(task Task) bool {
	select {
	case w.queue <- task:
		if w.metrics != nil {
			w.metrics.RecordQueueDepth(len(w.queue))
		}
		return true
	default:
		if w.metrics != nil {
			w.metrics.RecordDropped()
		}
		w.logger.Warnf("upload queue full, segment dropped", map[string]any{
			"stream": task.Stream,
			"path":   task.Path,
		})
		return false
	}
}

// run is the main worker loop.
func (w *Worker) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case task := <-w.queue:
			w.process(task)
			if w.metrics != nil {
				w.metrics.RecordQueueDepth(len(w.queue))
			}
		}
	}
}

func (w *Worker) process(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(w.config.UploadTimeoutMs)*time.Millisecond)
	defer cancel()

	key, size, err := w.uploader.Upload(ctx, task.Path)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordUploadFailure()
		}
		w.logger.Errorf("segment upload failed", map[string]any{
			"stream": task.Stream,
			"path":   task.Path,
			"error":  err.Error(),
		})
		return
	}

	if w.metrics != nil {
		w.metrics.RecordUpload(size)
	}
	w.logger.Infof("segment archived", map[string]any{
		"stream": task.Stream,
		"path":   task.Path,
		"key":    key,
		"bytes":  size,
	})

	if w.sink != nil {
		ev := events.Event{
			Type:   events.TypeSegmentArchived,
			Stream: task.Stream,
			Path:   task.Path,
			At:     time.Now().UTC(),
		}
		if err := w.sink.Publish(ctx, ev); err != nil {
			w.logger.Warnf("archived event publish failed", map[string]any{
				"stream": task.Stream,
				"error":  err.Error(),
			})
		}
	}
}
