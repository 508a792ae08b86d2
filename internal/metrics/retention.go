package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RetentionMetrics holds metrics for the retention manager.
type RetentionMetrics struct {
	// TrackedFiles tracks the number of segments currently under retention.
	TrackedFiles prometheus.Gauge

	// FilesRemoved counts segments deleted after aging out.
	FilesRemoved prometheus.Counter

	// RemoveFailures counts failed deletion attempts.
	RemoveFailures prometheus.Counter

	// EntriesDropped counts entries abandoned after exhausting delete retries.
	EntriesDropped prometheus.Counter

	// FilesReconciled counts pre-existing files recovered at startup.
	FilesReconciled prometheus.Counter

	// SweepDuration observes the duration of retention sweeps.
	SweepDuration prometheus.Histogram
}

var sweepDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// NewRetentionMetrics creates and registers retention metrics.
// Uses promauto for automatic registration with the default registry.
func NewRetentionMetrics() *RetentionMetrics {
	return &RetentionMetrics{
		TrackedFiles: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vigil",
				Subsystem: "retention",
				Name:      "tracked_files",
				Help:      "Number of segment files currently under retention tracking.",
			},
		),
		FilesRemoved: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "retention",
				Name:      "files_removed_total",
				Help:      "Segment files deleted after exceeding their retention window.",
			},
		),
		RemoveFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "retention",
				Name:      "remove_failures_total",
				Help:      "Failed segment deletion attempts.",
			},
		),
		EntriesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "retention",
				Name:      "entries_dropped_total",
				Help:      "Tracked entries abandoned after exhausting delete retries.",
			},
		),
		FilesReconciled: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "retention",
				Name:      "files_reconciled_total",
				Help:      "Pre-existing segment files recovered into tracking at startup.",
			},
		),
		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vigil",
				Subsystem: "retention",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of retention sweeps.",
				Buckets:   sweepDurationBuckets,
			},
		),
	}
}

// NewRetentionMetricsWithRegistry creates retention metrics registered with
// a custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewRetentionMetricsWithRegistry(reg prometheus.Registerer) *RetentionMetrics {
	trackedFiles := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "retention",
			Name:      "tracked_files",
			Help:      "Number of segment files currently under retention tracking.",
		},
	)

	filesRemoved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "retention",
			Name:      "files_removed_total",
			Help:      "Segment files deleted after exceeding their retention window.",
		},
	)

	removeFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "retention",
			Name:      "remove_failures_total",
			Help:      "Failed segment deletion attempts.",
		},
	)

	entriesDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "retention",
			Name:      "entries_dropped_total",
			Help:      "Tracked entries abandoned after exhausting delete retries.",
		},
	)

	filesReconciled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "retention",
			Name:      "files_reconciled_total",
			Help:      "Pre-existing segment files recovered into tracking at startup.",
		},
	)

	sweepDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "retention",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of retention sweeps.",
			Buckets:   sweepDurationBuckets,
		},
	)

	reg.MustRegister(trackedFiles)
	reg.MustRegister(filesRemoved)
	reg.MustRegister(removeFailures)
	reg.MustRegister(entriesDropped)
	reg.MustRegister(filesReconciled)
	reg.MustRegister(sweepDuration)

	return &RetentionMetrics{
		TrackedFiles:    trackedFiles,
		FilesRemoved:    filesRemoved,
		RemoveFailures:  removeFailures,
		EntriesDropped:  entriesDropped,
		FilesReconciled: filesReconciled,
		SweepDuration:   sweepDuration,
	}
}

// RecordTrackedFiles updates the tracked file gauge.
func (m *RetentionMetrics) RecordTrackedFiles(count int) {
	m.TrackedFiles.Set(float64(count))
}

// RecordFileRemoved increments the removed counter.
func (m *RetentionMetrics) RecordFileRemoved() {
	m.FilesRemoved.Inc()
}

// RecordRemoveFailure increments the remove failure counter.
func (m *RetentionMetrics) RecordRemoveFailure() {
	m.RemoveFailures.Inc()
}

// RecordEntryDropped increments the dropped entry counter.
func (m *RetentionMetrics) RecordEntryDropped() {
	m.EntriesDropped.Inc()
}

// RecordFilesReconciled adds to the reconciled counter.
func (m *RetentionMetrics) RecordFilesReconciled(count int) {
	m.FilesReconciled.Add(float64(count))
}

// RecordSweepDuration observes one sweep duration.
func (m *RetentionMetrics) RecordSweepDuration(seconds float64) {
	m.SweepDuration.Observe(seconds)
}
