// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relink

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/AleutianAI/check42/services/compliance/procgroup"
)

// DefaultBuildTimeout bounds a single build invocation.
const DefaultBuildTimeout = 10 * time.Minute

// BuildReason explains an unsuccessful build.
type BuildReason int

const (
	ReasonNone BuildReason = iota
	ReasonToolUnavailable
	ReasonExitStatus
	ReasonTimeout
)

func (r BuildReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonToolUnavailable:
		return "build tool unavailable"
	case ReasonExitStatus:
		return "non-zero exit"
	case ReasonTimeout:
		return "timed out"
	default:
		return "unknown"
	}
}

// BuildResult is the outcome of one build invocation.
type BuildResult struct {
	Success  bool
	ExitCode int
	Reason   BuildReason

	// Output is the tool's diagnostics: stderr, or stdout when stderr is empty.
	Output string
}

// Builder runs the project build in a directory.
//
// # Description
//
// Abstracts the build tool so the relink protocol can be driven by a fake in
// tests. Implementations report every failure through BuildResult; the only
// error is a cancelled parent context.
type Builder interface {
	Build(ctx context.Context, dir string) (BuildResult, error)
}

// MakeBuilder runs `make -C <dir>`.
type MakeBuilder struct {
	command  string
	timeout  time.Duration
	lookPath func(string) (string, error)
}

// BuilderOption configures a MakeBuilder.
type BuilderOption func(*MakeBuilder)

// WithCommand overrides the build binary (default "make").
func WithCommand(command string) BuilderOption {
	return func(b *MakeBuilder) {
		if command != "" {
			b.command = command
		}
	}
}

// WithBuildTimeout bounds each invocation. Zero keeps the default.
func WithBuildTimeout(d time.Duration) BuilderOption {
	return func(b *MakeBuilder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBuilderLookPath overrides binary resolution.
func WithBuilderLookPath(fn func(string) (string, error)) BuilderOption {
	return func(b *MakeBuilder) {
		b.lookPath = fn
	}
}

// NewMakeBuilder creates a make-driven Builder.
func NewMakeBuilder(opts ...BuilderOption) *MakeBuilder {
	b := &MakeBuilder{
		command:  "make",
		timeout:  DefaultBuildTimeout,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Command returns the build tool name.
func (b *MakeBuilder) Command() string {
	return b.command
}

// Build implements Builder.
func (b *MakeBuilder) Build(ctx context.Context, dir string) (BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return BuildResult{}, err
	}

	bin, err := b.lookPath(b.command)
	if err != nil {
		return BuildResult{Reason: ReasonToolUnavailable, ExitCode: -1, Output: err.Error()}, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, bin, "-C", dir)
	procgroup.Bind(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() != nil {
		return BuildResult{}, ctx.Err()
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return BuildResult{Reason: ReasonTimeout, ExitCode: -1, Output: diagnostics(&stdout, &stderr)}, nil
	}
	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		out := diagnostics(&stdout, &stderr)
		if out == "" {
			out = runErr.Error()
		}
		return BuildResult{Reason: ReasonExitStatus, ExitCode: code, Output: out}, nil
	}

	return BuildResult{Success: true, Output: diagnostics(&stdout, &stderr)}, nil
}

func diagnostics(stdout, stderr *bytes.Buffer) string {
	if s := strings.TrimSpace(stderr.String()); s != "" {
		return s
	}
	return strings.TrimSpace(stdout.String())
}

var _ Builder = (*MakeBuilder)(nil)
