package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ArchiveMetrics holds metrics for segment archival.
type ArchiveMetrics struct {
	// Uploads counts segments uploaded to the archive store.
	Uploads prometheus.Counter

	// UploadFailures counts failed uploads.
	UploadFailures prometheus.Counter

	// BytesUploaded counts archived bytes.
	BytesUploaded prometheus.Counter

	// QueueDepth tracks the number of segments waiting to be uploaded.
	QueueDepth prometheus.Gauge

	// Dropped counts segments dropped because the upload queue was full.
	Dropped prometheus.Counter
}

// NewArchiveMetrics creates and registers archive metrics.
// Uses promauto for automatic registration with the default registry.
func NewArchiveMetrics() *ArchiveMetrics {
	return &ArchiveMetrics{
		Uploads: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "archive",
				Name:      "uploads_total",
				Help:      "Segments uploaded to the archive store.",
			},
		),
		UploadFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "archive",
				Name:      "upload_failures_total",
				Help:      "Failed segment uploads.",
			},
		),
		BytesUploaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "archive",
				Name:      "bytes_uploaded_total",
				Help:      "Bytes uploaded to the archive store.",
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vigil",
				Subsystem: "archive",
				Name:      "queue_depth",
				Help:      "Segments waiting in the upload queue.",
			},
		),
		Dropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "archive",
				Name:      "dropped_total",
				Help:      "Segments dropped because the upload queue was full.",
			},
		),
	}
}

// NewArchiveMetricsWithRegistry creates archive metrics registered with a
// custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewArchiveMetricsWithRegistry(reg prometheus.Registerer) *ArchiveMetrics {
	uploads := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "archive",
			Name:      "uploads_total",
			Help:      "Segments uploaded to the archive store.",
		},
	)

	uploadFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "archive",
			Name:      "upload_failures_total",
			Help:      "Failed segment uploads.",
		},
	)

	bytesUploaded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "archive",
			Name:      "bytes_uploaded_total",
			Help:      "Bytes uploaded to the archive store.",
		},
	)

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "archive",
			Name:      "queue_depth",
			Help:      "Segments waiting in the upload queue.",
		},
	)

	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "archive",
			Name:      "dropped_total",
			Help:      "Segments dropped because the upload queue was full.",
		},
	)

	reg.MustRegister(uploads)
	reg.MustRegister(uploadFailures)
	reg.MustRegister(bytesUploaded)
	reg.MustRegister(queueDepth)
	reg.MustRegister(dropped)

	return &ArchiveMetrics{
		Uploads:        uploads,
		UploadFailures: uploadFailures,
		BytesUploaded:  bytesUploaded,
		QueueDepth:     queueDepth,
		Dropped:        dropped,
	}
}

// RecordUpload records one successful upload of the given size.
func (m *ArchiveMetrics) RecordUpload(sizeBytes int64) {
	m.Uploads.Inc()
	if sizeBytes > 0 {
		m.BytesUploaded.Add(float64(sizeBytes))
	}
}

// RecordUploadFailure increments the failure counter.
func (m *ArchiveMetrics) RecordUploadFailure() {
	m.UploadFailures.Inc()
}

// RecordQueueDepth updates the queue depth gauge.
func (m *ArchiveMetrics) RecordQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordDropped increments the dropped counter.
func (m *ArchiveMetrics) RecordDropped() {
	m.Dropped.Inc()
}
