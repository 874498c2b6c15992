// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize turns raw C source into the text handed to the parser.
//
// The C preprocessor is run on each translation unit so that macro-expanded
// calls become visible. When the preprocessor is unavailable, times out or
// rejects the file, the raw source is used instead and the reason is carried
// in the Result so callers can surface it.
package normalize

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/AleutianAI/check42/services/compliance/procgroup"
)

// DefaultTimeout bounds a single preprocessor invocation.
const DefaultTimeout = 30 * time.Second

// Mode records which text a Result carries.
type Mode int

const (
	// ModePreprocessed means Text is macro-expanded preprocessor output.
	ModePreprocessed Mode = iota

	// ModeRaw means Text is the unit's original content.
	ModeRaw
)

func (m Mode) String() string {
	if m == ModePreprocessed {
		return "preprocessed"
	}
	return "raw"
}

// Reason explains why a Result fell back to raw text.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnavailable
	ReasonTimeout
	ReasonFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnavailable:
		return "preprocessor unavailable"
	case ReasonTimeout:
		return "preprocessor timed out"
	case ReasonFailed:
		return "preprocessor failed"
	default:
		return "unknown"
	}
}

// Result is the normalized text for one unit.
type Result struct {
	Text   []byte
	Mode   Mode
	Reason Reason

	// Detail is the first line of the tool's diagnostics when it failed.
	Detail string
}

// FellBack reports whether the raw text was used.
func (r Result) FellBack() bool {
	return r.Mode == ModeRaw
}

// Config configures the preprocessor invocation.
type Config struct {
	// Command is the preprocessor binary (default "gcc").
	Command string

	// Args precede the unit path (default "-E -std=c99").
	Args []string

	// Timeout bounds one invocation (default 30s).
	Timeout time.Duration
}

// DefaultConfig returns gcc in preprocess-only C99 mode.
//
// __builtin_va_arg takes a type as its second argument, which is not an
// expression and would make the expanded text unparseable; it is rewritten
// into a pointer cast so va_arg sites stay analyzable.
func DefaultConfig() Config {
	return Config{
		Command: "gcc",
		Args:    []string{"-E", "-std=c99", "-D__builtin_va_arg(v,t)=__builtin_va_arg(v,(t*)0)"},
		Timeout: DefaultTimeout,
	}
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = logger
	}
}

// WithLookPath overrides binary resolution. Tests use it to simulate a
// missing toolchain.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Preprocessor) {
		p.lookPath = fn
	}
}

// Preprocessor runs the C preprocessor over source units.
//
// Thread Safety:
//
//	Safe for concurrent use; each Normalize call spawns its own process.
type Preprocessor struct {
	cfg      Config
	binary   string
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

// New resolves the configured preprocessor binary once.
func New(cfg Config, opts ...Option) *Preprocessor {
	def := DefaultConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.Args == nil {
		cfg.Args = def.Args
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	p := &Preprocessor{
		cfg:      cfg,
		logger:   slog.Default(),
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(p)
	}

	if bin, err := p.lookPath(cfg.Command); err == nil {
		p.binary = bin
	} else {
		p.logger.Warn("preprocessor not found, sources will be analyzed unexpanded",
			slog.String("command", cfg.Command))
	}
	return p
}

// Available reports whether the preprocessor binary was found.
func (p *Preprocessor) Available() bool {
	return p.binary != ""
}

// Command returns the configured command name.
func (p *Preprocessor) Command() string {
	return p.cfg.Command
}

// Normalize expands the unit at path.
//
// Description:
//
//	Runs `<command> <args...> <path>` with the configured timeout and keeps
//	only the lines the preprocessor attributes to path itself. Any tool
//	problem yields raw with the matching Reason; the file on disk is never
//	modified.
//
// Inputs:
//
//	ctx  - Cancellation. A cancelled parent context is the only error.
//	path - Path handed to the preprocessor.
//	raw  - The unit's content, returned on fallback.
//
// Outputs:
//
//	Result - Normalized text and how it was produced.
//	error  - ctx.Err() when the parent context was cancelled.
func (p *Preprocessor) Normalize(ctx context.Context, path string, raw []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !p.Available() {
		return rawResult(raw, ReasonUnavailable, ""), nil
	}

	args := make([]string, 0, len(p.cfg.Args)+1)
	args = append(args, p.cfg.Args...)
	args = append(args, path)

	cmdCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, p.binary, args...)
	procgroup.Bind(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		p.logger.Debug("preprocessor timed out",
			slog.String("file", path),
			slog.Duration("timeout", p.cfg.Timeout))
		return rawResult(raw, ReasonTimeout, ""), nil
	}
	if err != nil {
		detail := firstLine(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		p.logger.Debug("preprocessor failed",
			slog.String("file", path),
			slog.String("detail", detail))
		return rawResult(raw, ReasonFailed, detail), nil
	}

	return Result{
		Text: StripLinemarkers(stdout.Bytes(), path),
		Mode: ModePreprocessed,
	}, nil
}

func rawResult(raw []byte, reason Reason, detail string) Result {
	return Result{Text: raw, Mode: ModeRaw, Reason: reason, Detail: detail}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
