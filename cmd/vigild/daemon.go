package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vigil-io/vigil/internal/archive"
	"github.com/vigil-io/vigil/internal/capture"
	"github.com/vigil-io/vigil/internal/config"
	"github.com/vigil-io/vigil/internal/encoder"
	"github.com/vigil-io/vigil/internal/events"
	"github.com/vigil-io/vigil/internal/layout"
	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
	"github.com/vigil-io/vigil/internal/reconcile"
	"github.com/vigil-io/vigil/internal/recorder"
	"github.com/vigil-io/vigil/internal/retention"
	"github.com/vigil-io/vigil/internal/server"
	"github.com/vigil-io/vigil/internal/stream"
)

// DaemonOptions contains the configuration for creating a daemon.
type DaemonOptions struct {
	Config    *config.Config
	Logger    *logging.Logger
	DaemonID  string
	Version   string
	GitCommit string
	BuildTime string
}

// Daemon represents a running Vigil capture daemon.
type Daemon struct {
	opts         DaemonOptions
	logger       *logging.Logger
	catalog      *stream.Catalog
	engine       *encoder.FFmpeg
	manager      *recorder.Manager
	tracker      *retention.Tracker
	sweeper      *retention.Worker
	scanner      *reconcile.Scanner
	archiver     *archive.Worker
	sink         events.Sink
	supervisor   *capture.Supervisor
	healthServer *server.HealthServer

	mu      sync.Mutex
	started bool
	stopFn  context.CancelFunc
	doneCh  chan struct{}
}

// NewDaemon creates a daemon from options.
func NewDaemon(opts DaemonOptions) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}

	return &Daemon{
		opts:   opts,
		logger: opts.Logger,
		doneCh: make(chan struct{}),
	}, nil
}

// Start initializes all components and runs the capture loop. It blocks
// until the context is cancelled or Shutdown is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.stopFn = cancel
	d.mu.Unlock()
	defer close(d.doneCh)

	cfg := d.opts.Config

	d.logger.Infof("starting daemon", map[string]any{
		"daemonId": d.opts.DaemonID,
		"version":  d.opts.Version,
		"root":     cfg.Storage.Root,
		"streams":  len(cfg.Streams),
	})

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("invalid stream configuration: %w", err)
	}
	d.catalog = catalog

	d.engine = encoder.NewFFmpeg(encoder.FFmpegConfig{
		Binary:        cfg.Recorder.Binary,
		StopTimeoutMs: cfg.Recorder.StopTimeoutMs,
	})
	if err := d.engine.Available(); err != nil {
		return fmt.Errorf("encoder unavailable: %w", err)
	}

	recorderMetrics := metrics.NewRecorderMetrics()
	retentionMetrics := metrics.NewRetentionMetrics()
	eventMetrics := metrics.NewEventMetrics()

	sink, err := d.buildSink(ctx, eventMetrics)
	if err != nil {
		return err
	}
	d.sink = sink

	d.manager = recorder.NewManager(d.engine, recorder.Config{
		GraceSeconds: cfg.Recorder.GraceSeconds,
	}, d.logger).WithMetrics(recorderMetrics)

	d.tracker = retention.NewTracker(retention.TrackerConfig{
		MaxDeleteAttempts: cfg.Retention.MaxDeleteAttempts,
	}, d.logger).WithMetrics(retentionMetrics)
	d.tracker.WithRemoveHook(d.publishDeleted)

	d.scanner = reconcile.NewScanner(cfg.Storage.Root, d.catalog, d.tracker, d.logger).
		WithMetrics(retentionMetrics)

	if cfg.Archive.Enabled {
		uploader, err := archive.NewS3Uploader(ctx, archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKey,
			SecretAccessKey: cfg.Archive.SecretKey,
			UsePathStyle:    cfg.Archive.UsePathStyle,
			KeyPrefix:       cfg.Archive.KeyPrefix,
			Root:            cfg.Storage.Root,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize archive uploader: %w", err)
		}
		d.archiver = archive.NewWorker(uploader, archive.WorkerConfig{
			QueueSize:       cfg.Archive.QueueSize,
			UploadTimeoutMs: cfg.Archive.UploadTimeoutMs,
		}, d.logger).WithMetrics(metrics.NewArchiveMetrics()).WithSink(d.sink)
		d.archiver.Start()
	}

	if cfg.Retention.SweepIntervalMs > 0 {
		d.sweeper = retention.NewWorker(d.tracker, retention.WorkerConfig{
			SweepIntervalMs: cfg.Retention.SweepIntervalMs,
		})
		d.sweeper.Start()
	}

	d.supervisor = capture.NewSupervisor(d.catalog, d.manager, d.tracker, d.scanner, capture.Config{
		Root:      cfg.Storage.Root,
		Container: cfg.Storage.Container,
	}, d.logger).WithSink(d.sink)
	if d.archiver != nil {
		d.supervisor.WithArchiver(d.archiver)
	}

	healthServer := server.NewHealthServer(cfg.Observability.ListenAddr, d.logger)
	healthServer.RegisterHandler("/metrics", promhttp.Handler())
	healthServer.RegisterReadinessCheck(server.NewEncoderChecker(d.engine))
	healthServer.RegisterReadinessCheck(server.NewRootWritableChecker(cfg.Storage.Root))
	d.mu.Lock()
	d.healthServer = healthServer
	d.mu.Unlock()
	if err := d.healthServer.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	d.logger.Infof("health server started", map[string]any{
		"addr": d.healthServer.Addr(),
	})

	d.healthServer.RegisterGoroutine("capture-loop")
	d.supervisor.WithHeartbeat(func() {
		d.healthServer.UpdateGoroutine("capture-loop")
	})

	d.logger.Info("daemon started")

	if err := d.supervisor.Run(runCtx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildSink composes the configured event sinks.
func (d *Daemon) buildSink(ctx context.Context, em *metrics.EventMetrics) (events.Sink, error) {
	cfg := d.opts.Config
	var sinks []events.Sink

	if cfg.Events.JournalPath != "" {
		journal, err := events.NewJournal(events.JournalConfig{
			Path:         cfg.Events.JournalPath,
			MaxSizeBytes: cfg.Events.JournalMaxSizeBytes,
			Keep:         cfg.Events.JournalKeep,
		}, d.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open event journal: %w", err)
		}
		sinks = append(sinks, journal.WithMetrics(em))
	}

	if cfg.Events.KafkaEnabled {
		publisher, err := events.NewKafkaPublisher(ctx, events.KafkaConfig{
			Brokers:         cfg.Events.KafkaBrokers,
			Topic:           cfg.Events.KafkaTopic,
			EnsureTopic:     cfg.Events.EnsureTopic,
			TopicPartitions: cfg.Events.TopicPartitions,
		}, d.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}
		sinks = append(sinks, publisher.WithMetrics(em))
	}

	switch len(sinks) {
	case 0:
		return events.Nop{}, nil
	case 1:
		return sinks[0], nil
	default:
		return events.NewFanout(sinks...), nil
	}
}

// publishDeleted emits a segment.deleted event for every file the tracker
// removes, whether from an event-triggered or a periodic sweep.
func (d *Daemon) publishDeleted(path string) {
	name, err := layout.StreamForPath(d.opts.Config.Storage.Root, path)
	if err != nil {
		name = ""
	}
	ev := events.Event{
		Type:   events.TypeSegmentDeleted,
		Stream: name,
		Path:   path,
		At:     time.Now().UTC(),
	}
	if err := d.sink.Publish(context.Background(), ev); err != nil {
		d.logger.Warnf("failed to publish deletion event", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}
}

// HealthServerAddr returns the address the health server is listening on,
// or empty if not yet listening. This method is thread-safe.
func (d *Daemon) HealthServerAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.healthServer == nil {
		return ""
	}
	return d.healthServer.Addr()
}

// Shutdown gracefully stops the daemon. Capture instances are stopped and
// their terminal events drained before workers and sinks are closed.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	stopFn := d.stopFn
	d.mu.Unlock()

	d.logger.Info("shutting down daemon")

	if d.healthServer != nil {
		d.healthServer.SetShuttingDown()
	}

	// Cancel the capture loop; the supervisor stops all instances and
	// drains their terminal events before Run returns.
	if stopFn != nil {
		stopFn()
	}

	select {
	case <-d.doneCh:
	case <-ctx.Done():
		d.logger.Warn("shutdown context cancelled, forcing stop")
	}

	if d.sweeper != nil {
		d.sweeper.Stop()
	}
	if d.archiver != nil {
		d.archiver.Stop()
	}

	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			d.logger.Warnf("error closing event sink", map[string]any{
				"error": err.Error(),
			})
		}
	}

	if d.healthServer != nil {
		if err := d.healthServer.Close(); err != nil {
			d.logger.Warnf("error closing health server", map[string]any{
				"error": err.Error(),
			})
		}
	}

	d.logger.Info("daemon shutdown complete")
	return nil
}
