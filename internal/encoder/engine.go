// Package encoder abstracts the external encoding engine.
//
// The core never inspects media: it launches an opaque external process
// with a constructed argument set and observes it only through the
// start/end/error signals surfaced by the Process interface.
package encoder

import (
	"context"

	"github.com/vigil-io/vigil/internal/stream"
)

// LaunchRequest describes one capture invocation. The recorder builds it
// from a stream spec and an allocated destination path.
type LaunchRequest struct {
	// Source is the capture input URI.
	Source string

	// Destination is the absolute output path of the segment.
	Destination string

	// Format is the output container passed to the engine (e.g. "mp4").
	// Empty lets the engine infer it from the destination extension.
	Format string

	// DurationSec caps the segment length. Zero means unbounded.
	DurationSec int64

	// Video and Audio select drop/copy/transcode per elementary stream.
	Video stream.EncodingOptions
	Audio stream.EncodingOptions

	// InputArgs precede the input, OutputArgs precede the destination.
	// Both are passed through verbatim.
	InputArgs  []string
	OutputArgs []string
}

// Process is a handle to one running encoder invocation.
//
// Exactly one of the two terminal observations holds: Done with a nil Err
// (clean end) or Done with a non-nil Err (failure). Started may never fire
// if the process dies before producing output.
type Process interface {
	// Started is closed once the engine has begun writing output.
	// The destination file is presumed to exist from this point, subject
	// to a short flush latency callers must tolerate.
	Started() <-chan struct{}

	// Done is closed when the process has fully terminated.
	Done() <-chan struct{}

	// Err reports the terminal error. Only valid after Done is closed;
	// nil means a clean end. An exit caused by a requested Stop counts
	// as clean regardless of the process exit status.
	Err() error

	// Output returns a bounded tail of the process diagnostic output,
	// for failure logs.
	Output() string

	// Stop requests graceful termination. Termination is confirmed only
	// by Done closing, never synchronously.
	Stop() error

	// Kill force-terminates the process.
	Kill() error
}

// Engine launches capture processes.
type Engine interface {
	// Available verifies the engine can run at all. Checked once at boot;
	// a failure there is a fatal startup precondition.
	Available() error

	// Launch starts one capture process. The context bounds the launch
	// itself, not the lifetime of the process.
	Launch(ctx context.Context, req LaunchRequest) (Process, error)
}
