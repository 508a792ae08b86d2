package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vigil-io/vigil/internal/encoder"
)

// EncoderChecker implements ReadinessChecker for the encoder engine.
// The daemon cannot record anything without a working encoder binary.
type EncoderChecker struct {
	engine encoder.Engine
}

// NewEncoderChecker creates a new EncoderChecker.
func NewEncoderChecker(engine encoder.Engine) *EncoderChecker {
	return &EncoderChecker{engine: engine}
}

// Name returns the name of this component for health status display.
func (c *EncoderChecker) Name() string {
	return "encoder"
}

// CheckReady verifies the encoder binary is present and executable.
func (c *EncoderChecker) CheckReady(ctx context.Context) error {
	if c.engine == nil {
		return errors.New("encoder not configured")
	}
	return c.engine.Available()
}

// RootWritableChecker implements ReadinessChecker for the destination root.
// It verifies segments can actually be written by creating and removing a
// probe file.
type RootWritableChecker struct {
	root string
}

// NewRootWritableChecker creates a new RootWritableChecker.
func NewRootWritableChecker(root string) *RootWritableChecker {
	return &RootWritableChecker{root: root}
}

// Name returns the name of this component for health status display.
func (c *RootWritableChecker) Name() string {
	return "storage_root"
}

// CheckReady verifies the destination root exists and is writable.
func (c *RootWritableChecker) CheckReady(ctx context.Context) error {
	if c.root == "" {
		return errors.New("destination root not configured")
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("destination root not creatable: %w", err)
	}

	probe := filepath.Join(c.root, ".vigil-readyz")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("destination root not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("destination root probe cleanup failed: %w", err)
	}
	return nil
}

// FuncChecker is a simple ReadinessChecker that wraps a function.
// Useful for ad-hoc checks or testing.
type FuncChecker struct {
	name  string
	check func(context.Context) error
}

// NewFuncChecker creates a new FuncChecker with the given name and check function.
func NewFuncChecker(name string, check func(context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

// Name returns the name of this component.
func (c *FuncChecker) Name() string {
	return c.name
}

// CheckReady calls the wrapped function.
func (c *FuncChecker) CheckReady(ctx context.Context) error {
	if c.check == nil {
		return nil
	}
	return c.check(ctx)
}
