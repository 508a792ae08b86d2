package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RecorderMetrics holds metrics for the recording instance manager.
type RecorderMetrics struct {
	// ActiveInstances tracks the number of currently active capture processes.
	ActiveInstances prometheus.Gauge

	// SegmentsStarted counts segments whose capture process began writing.
	SegmentsStarted prometheus.Counter

	// SegmentsEnded counts segments that finished cleanly.
	SegmentsEnded prometheus.Counter

	// SegmentsFailed counts capture processes that terminated with an error.
	SegmentsFailed prometheus.Counter

	// SupervisionKills counts processes force-killed by the supervision timer.
	SupervisionKills prometheus.Counter

	// SegmentSeconds observes the wall-clock duration of completed segments.
	SegmentSeconds prometheus.Histogram
}

// segmentDurationBuckets covers segment lengths from seconds to hours.
var segmentDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200}

// NewRecorderMetrics creates and registers recorder metrics.
// Uses promauto for automatic registration with the default registry.
func NewRecorderMetrics() *RecorderMetrics {
	return &RecorderMetrics{
		ActiveInstances: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vigil",
				Subsystem: "recorder",
				Name:      "active_instances",
				Help:      "Number of currently active capture processes.",
			},
		),
		SegmentsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "recorder",
				Name:      "segments_started_total",
				Help:      "Segments whose capture process began writing output.",
			},
		),
		SegmentsEnded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "recorder",
				Name:      "segments_ended_total",
				Help:      "Segments whose capture process finished cleanly.",
			},
		),
		SegmentsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "recorder",
				Name:      "segments_failed_total",
				Help:      "Capture processes that terminated with an error.",
			},
		),
		SupervisionKills: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "recorder",
				Name:      "supervision_kills_total",
				Help:      "Processes force-killed after overrunning the segment cap plus grace.",
			},
		),
		SegmentSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vigil",
				Subsystem: "recorder",
				Name:      "segment_duration_seconds",
				Help:      "Wall-clock duration of completed segments.",
				Buckets:   segmentDurationBuckets,
			},
		),
	}
}

// NewRecorderMetricsWithRegistry creates recorder metrics registered with a
// custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewRecorderMetricsWithRegistry(reg prometheus.Registerer) *RecorderMetrics {
	activeInstances := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "recorder",
			Name:      "active_instances",
			Help:      "Number of currently active capture processes.",
		},
	)

	segmentsStarted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "recorder",
			Name:      "segments_started_total",
			Help:      "Segments whose capture process began writing output.",
		},
	)

	segmentsEnded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "recorder",
			Name:      "segments_ended_total",
			Help:      "Segments whose capture process finished cleanly.",
		},
	)

	segmentsFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "recorder",
			Name:      "segments_failed_total",
			Help:      "Capture processes that terminated with an error.",
		},
	)

	supervisionKills := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "recorder",
			Name:      "supervision_kills_total",
			Help:      "Processes force-killed after overrunning the segment cap plus grace.",
		},
	)

	segmentSeconds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "recorder",
			Name:      "segment_duration_seconds",
			Help:      "Wall-clock duration of completed segments.",
			Buckets:   segmentDurationBuckets,
		},
	)

	reg.MustRegister(activeInstances)
	reg.MustRegister(segmentsStarted)
	reg.MustRegister(segmentsEnded)
	reg.MustRegister(segmentsFailed)
	reg.MustRegister(supervisionKills)
	reg.MustRegister(segmentSeconds)

	return &RecorderMetrics{
		ActiveInstances:  activeInstances,
		SegmentsStarted:  segmentsStarted,
		SegmentsEnded:    segmentsEnded,
		SegmentsFailed:   segmentsFailed,
		SupervisionKills: supervisionKills,
		SegmentSeconds:   segmentSeconds,
	}
}

// RecordActiveInstances updates the active instance gauge.
func (m *RecorderMetrics) RecordActiveInstances(count int) {
	m.ActiveInstances.Set(float64(count))
}

// RecordSegmentStarted increments the started counter.
func (m *RecorderMetrics) RecordSegmentStarted() {
	m.SegmentsStarted.Inc()
}

// RecordSegmentEnded increments the ended counter and observes the
// segment's wall-clock duration.
func (m *RecorderMetrics) RecordSegmentEnded(seconds float64) {
	m.SegmentsEnded.Inc()
	if seconds > 0 {
		m.SegmentSeconds.Observe(seconds)
	}
}

// RecordSegmentFailed increments the failed counter.
func (m *RecorderMetrics) RecordSegmentFailed() {
	m.SegmentsFailed.Inc()
}

// RecordSupervisionKill increments the supervision kill counter.
func (m *RecorderMetrics) RecordSupervisionKill() {
	m.SupervisionKills.Inc()
}
