// Package stream holds per-stream capture configuration and the catalog
// used to look specs up by name.
package stream

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrStreamNotFound    = errors.New("stream: stream not found")
	ErrDuplicateStream   = errors.New("stream: duplicate stream name")
	ErrInvalidStreamName = errors.New("stream: invalid stream name")
	ErrMissingSource     = errors.New("stream: missing source URI")
	ErrInvalidDuration   = errors.New("stream: negative duration")
)

// EncodingOptions selects how one elementary stream (video or audio) is
// handled by the external encoder.
type EncodingOptions struct {
	// Record controls whether the stream is kept at all. When false the
	// stream is dropped from the output entirely.
	Record bool `yaml:"record"`

	// Transcode controls re-encoding. When false the stream is passed
	// through unmodified (codec copy) and the remaining options are ignored.
	Transcode bool `yaml:"transcode"`

	Codec   string `yaml:"codec"`
	Bitrate string `yaml:"bitrate"`

	// Video-only options. Zero values leave the source geometry untouched.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// Spec is the immutable per-stream configuration. It is owned by the
// configuration layer and read-only to every manager component.
type Spec struct {
	// Name is the unique stream key. It doubles as the first directory
	// component of every segment path, so it must be a single path element.
	Name string `yaml:"name"`

	// Source is the capture URI handed to the encoder (rtsp://, rtmp://,
	// a device path, ...).
	Source string `yaml:"source"`

	// FileDurationSec caps the length of one segment in seconds.
	// Zero means unbounded: the segment runs until the process is stopped.
	FileDurationSec int64 `yaml:"fileDuration"`

	// StorageDurationSec is the retention window in seconds for completed
	// segments. Zero means segments are eligible for deletion immediately.
	StorageDurationSec int64 `yaml:"storageDuration"`

	// Container is the output format/extension (e.g. "mp4", "mkv").
	// Empty falls back to the storage default.
	Container string `yaml:"container"`

	Video EncodingOptions `yaml:"video"`
	Audio EncodingOptions `yaml:"audio"`

	// InputArgs and OutputArgs are raw encoder arguments inserted before
	// the input and before the destination respectively. Passed through
	// without interpretation.
	InputArgs  []string `yaml:"inputArgs"`
	OutputArgs []string `yaml:"outputArgs"`
}

// Validate checks a single spec for structural problems.
func (s Spec) Validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if strings.TrimSpace(s.Source) == "" {
		return fmt.Errorf("%w: stream %q", ErrMissingSource, s.Name)
	}
	if s.FileDurationSec < 0 {
		return fmt.Errorf("%w: stream %q fileDuration %d", ErrInvalidDuration, s.Name, s.FileDurationSec)
	}
	if s.StorageDurationSec < 0 {
		return fmt.Errorf("%w: stream %q storageDuration %d", ErrInvalidDuration, s.Name, s.StorageDurationSec)
	}
	return nil
}

// validateName rejects names that cannot serve as a single directory
// component under the destination root.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidStreamName, name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidStreamName, name)
	}
	return nil
}

// Catalog is an ordered, name-indexed set of stream specs. Order is the
// configuration order and drives deterministic startup sequencing.
type Catalog struct {
	ordered []Spec
	byName  map[string]int
}

// NewCatalog builds a catalog from the given specs, validating each and
// rejecting duplicate names. The first spec with a given name wins lookup,
// but duplicates are a configuration error rather than silently shadowed.
func NewCatalog(specs []Spec) (*Catalog, error) {
	c := &Catalog{
		ordered: make([]Spec, 0, len(specs)),
		byName:  make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byName[s.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStream, s.Name)
		}
		c.byName[s.Name] = len(c.ordered)
		c.ordered = append(c.ordered, s)
	}
	return c, nil
}

// ByName looks up a spec by stream name.
func (c *Catalog) ByName(name string) (Spec, error) {
	idx, ok := c.byName[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrStreamNotFound, name)
	}
	return c.ordered[idx], nil
}

// Has reports whether a stream with the given name is configured.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// All returns the specs in configuration order. The returned slice is a
// copy; mutating it does not affect the catalog.
func (c *Catalog) All() []Spec {
	out := make([]Spec, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Len returns the number of configured streams.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// StorageDuration returns the retention window for the named stream, or
// zero when the stream is not configured. The zero fallback schedules
// unowned files for immediate removal during reconciliation.
func (c *Catalog) StorageDuration(name string) int64 {
	idx, ok := c.byName[name]
	if !ok {
		return 0
	}
	return c.ordered[idx].StorageDurationSec
}
