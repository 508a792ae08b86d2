package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vigil-io/vigil/internal/stream"
)

// FFmpeg defaults.
const (
	// DefaultBinary is the encoder binary resolved from PATH.
	DefaultBinary = "ffmpeg"

	// DefaultStopTimeoutMs is how long a graceful stop waits before
	// escalating to SIGKILL.
	DefaultStopTimeoutMs = 3000

	// outputTailBytes bounds the stderr tail kept for diagnostics.
	outputTailBytes = 8192
)

// FFmpegConfig configures the ffmpeg engine.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable. Default: "ffmpeg" from PATH.
	Binary string

	// StopTimeoutMs is the grace window between SIGINT and SIGKILL on
	// Stop. Default: 3000.
	StopTimeoutMs int64
}

// FFmpeg implements Engine by spawning ffmpeg processes.
type FFmpeg struct {
	config FFmpegConfig
}

// NewFFmpeg creates an ffmpeg engine.
func NewFFmpeg(config FFmpegConfig) *FFmpeg {
	if config.Binary == "" {
		config.Binary = DefaultBinary
	}
	if config.StopTimeoutMs <= 0 {
		config.StopTimeoutMs = DefaultStopTimeoutMs
	}
	return &FFmpeg{config: config}
}

// Available verifies the ffmpeg binary runs and identifies itself.
func (f *FFmpeg) Available() error {
	out, err := exec.Command(f.config.Binary, "-version").Output()
	if err != nil {
		return fmt.Errorf("encoder: %s not found: %w", f.config.Binary, err)
	}
	if !strings.Contains(string(out), "ffmpeg version") {
		return fmt.Errorf("encoder: %s is not ffmpeg", f.config.Binary)
	}
	return nil
}

// BuildArgs constructs the full ffmpeg argument list for a request.
//
// Order: prelude, input args, input, duration cap, video pipeline, audio
// pipeline, format, output args, destination. Per elementary stream the
// pipeline is a three-way choice: dropped entirely (record off), codec
// copy (transcode off), or an explicit encode.
func (f *FFmpeg) BuildArgs(req LaunchRequest) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-loglevel", "error",
		"-progress", "pipe:1",
		"-y",
	}

	args = append(args, req.InputArgs...)
	args = append(args, "-i", req.Source)

	if req.DurationSec > 0 {
		args = append(args, "-t", strconv.FormatInt(req.DurationSec, 10))
	}

	args = append(args, videoArgs(req.Video)...)
	args = append(args, audioArgs(req.Audio)...)

	if req.Format != "" {
		args = append(args, "-f", req.Format)
	}

	args = append(args, req.OutputArgs...)
	args = append(args, req.Destination)
	return args
}

func videoArgs(opts stream.EncodingOptions) []string {
	if !opts.Record {
		return []string{"-vn"}
	}
	if !opts.Transcode {
		return []string{"-c:v", "copy"}
	}
	args := []string{"-c:v", opts.Codec}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}
	if opts.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(opts.FPS))
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:v", opts.Bitrate)
	}
	return args
}

func audioArgs(opts stream.EncodingOptions) []string {
	if !opts.Record {
		return []string{"-an"}
	}
	if !opts.Transcode {
		return []string{"-c:a", "copy"}
	}
	args := []string{"-c:a", opts.Codec}
	if opts.Bitrate != "" {
		args = append(args, "-b:a", opts.Bitrate)
	}
	return args
}

// Launch starts an ffmpeg process for the request.
func (f *FFmpeg) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cmd := exec.Command(f.config.Binary, f.BuildArgs(req)...)

	p := &ffmpegProcess{
		cmd:         cmd,
		stopTimeout: time.Duration(f.config.StopTimeoutMs) * time.Millisecond,
		startedCh:   make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	// Output goes through in-process writers rather than pipes: Wait must
	// not run before pipe reads complete, and the stderr tail has to be
	// intact when the process exits.
	cmd.Stdout = progressWriter{p}
	cmd.Stderr = tailWriter{p}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder: start %s: %w", f.config.Binary, err)
	}

	go p.wait()

	return p, nil
}

// ffmpegProcess tracks one spawned ffmpeg invocation.
type ffmpegProcess struct {
	cmd         *exec.Cmd
	stopTimeout time.Duration

	startedOnce sync.Once
	startedCh   chan struct{}
	doneCh      chan struct{}

	stopOnce sync.Once

	mu            sync.Mutex
	err           error
	tail          []byte
	stopRequested bool
}

func (p *ffmpegProcess) Started() <-chan struct{} { return p.startedCh }
func (p *ffmpegProcess) Done() <-chan struct{}    { return p.doneCh }

func (p *ffmpegProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *ffmpegProcess) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.tail)
}

// progressWriter receives the -progress key=value feed. The first report
// means ffmpeg has opened the output and begun writing.
type progressWriter struct {
	p *ffmpegProcess
}

func (w progressWriter) Write(b []byte) (int, error) {
	if bytes.ContainsRune(b, '=') {
		w.p.startedOnce.Do(func() { close(w.p.startedCh) })
	}
	return len(b), nil
}

// tailWriter keeps a bounded tail of stderr for failure diagnostics.
type tailWriter struct {
	p *ffmpegProcess
}

func (w tailWriter) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	w.p.tail = append(w.p.tail, b...)
	if len(w.p.tail) > outputTailBytes {
		w.p.tail = w.p.tail[len(w.p.tail)-outputTailBytes:]
	}
	w.p.mu.Unlock()
	return len(b), nil
}

func (p *ffmpegProcess) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	if err != nil && p.stopRequested {
		// ffmpeg exits nonzero after SIGINT even when it finalized the
		// container cleanly; a requested stop is an end, not a failure.
		// Start and wait errors that are not exit statuses still surface.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = nil
		}
	}
	p.err = err
	p.mu.Unlock()

	close(p.doneCh)
}

// Stop sends SIGINT so ffmpeg can finalize the container, escalating to
// SIGKILL if the process outlives the stop timeout.
func (p *ffmpegProcess) Stop() error {
	var sigErr error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopRequested = true
		p.mu.Unlock()
		sigErr = p.cmd.Process.Signal(syscall.SIGINT)
		go func() {
			select {
			case <-p.doneCh:
			case <-time.After(p.stopTimeout):
				_ = p.cmd.Process.Kill()
			}
		}()
	})
	return sigErr
}

// Kill force-terminates the process.
func (p *ffmpegProcess) Kill() error {
	return p.cmd.Process.Kill()
}
