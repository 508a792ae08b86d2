// Package events exports segment lifecycle events to external consumers.
//
// Producers hand events to a Sink; the shipped sinks are a local NDJSON
// journal, a Kafka publisher, and a fan-out combining them. Event delivery
// is best-effort: a sink failure is logged and counted but never stalls or
// fails capture.
package events

import (
	"context"
	"errors"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	// TypeSegmentStarted fires when an encoding process begins writing.
	TypeSegmentStarted Type = "segment.started"
	// TypeSegmentEnded fires when a segment completes cleanly.
	TypeSegmentEnded Type = "segment.ended"
	// TypeSegmentFailed fires when an encoding process exits abnormally.
	TypeSegmentFailed Type = "segment.failed"
	// TypeSegmentDeleted fires when retention removes a segment file.
	TypeSegmentDeleted Type = "segment.deleted"
	// TypeSegmentArchived fires when a segment upload completes.
	TypeSegmentArchived Type = "segment.archived"
)

// Event is a single lifecycle occurrence.
type Event struct {
	Type   Type      `json:"type"`
	Stream string    `json:"stream"`
	Path   string    `json:"path,omitempty"`
	At     time.Time `json:"at"`
	RunID  string    `json:"runId,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Sink receives lifecycle events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop is a Sink that discards everything.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Sink.
func (Nop) Close() error { return nil }

// Fanout delivers each event to every sink. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a fan-out over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Publish implements Sink. All sinks are attempted; errors are joined.
func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
