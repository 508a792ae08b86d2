package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventMetrics holds metrics for lifecycle event export.
type EventMetrics struct {
	// Published counts events delivered to the publisher.
	Published prometheus.Counter

	// PublishFailures counts events that could not be delivered.
	PublishFailures prometheus.Counter

	// JournalRotations counts journal file rotations.
	JournalRotations prometheus.Counter
}

// NewEventMetrics creates and registers event export metrics.
// Uses promauto for automatic registration with the default registry.
func NewEventMetrics() *EventMetrics {
	return &EventMetrics{
		Published: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Lifecycle events delivered to the publisher.",
			},
		),
		PublishFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "events",
				Name:      "publish_failures_total",
				Help:      "Lifecycle events that could not be delivered.",
			},
		),
		JournalRotations: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "events",
				Name:      "journal_rotations_total",
				Help:      "Event journal file rotations.",
			},
		),
	}
}

// NewEventMetricsWithRegistry creates event metrics registered with a
// custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewEventMetricsWithRegistry(reg prometheus.Registerer) *EventMetrics {
	published := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Lifecycle events delivered to the publisher.",
		},
	)

	publishFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Lifecycle events that could not be delivered.",
		},
	)

	journalRotations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "events",
			Name:      "journal_rotations_total",
			Help:      "Event journal file rotations.",
		},
	)

	reg.MustRegister(published)
	reg.MustRegister(publishFailures)
	reg.MustRegister(journalRotations)

	return &EventMetrics{
		Published:        published,
		PublishFailures:  publishFailures,
		JournalRotations: journalRotations,
	}
}

// RecordPublished increments the published counter.
func (m *EventMetrics) RecordPublished() {
	m.Published.Inc()
}

// RecordPublishFailure increments the failure counter.
func (m *EventMetrics) RecordPublishFailure() {
	m.PublishFailures.Inc()
}

// RecordJournalRotation increments the rotation counter.
func (m *EventMetrics) RecordJournalRotation() {
	m.JournalRotations.Inc()
}
