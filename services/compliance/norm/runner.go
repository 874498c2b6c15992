// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package norm runs norminette, the 42 style checker, and turns its findings
// into advisories.
//
// A native norminette install is preferred. Without one, the pinned container
// image is run through Docker. Without either, the check is skipped silently.
// Norm findings never fail a submission.
package norm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/check42/services/compliance/policy"
	"github.com/AleutianAI/check42/services/compliance/procgroup"
)

// DefaultImage is the pinned norminette container image.
const DefaultImage = "ghcr.io/42school/norminette:3.3.58"

// Config configures the runner.
type Config struct {
	// Command is the native norminette binary.
	Command string

	// Docker is the container runtime used when Command is not installed.
	// Empty disables the container fallback.
	Docker string

	// Image is the container image; must be pinned to a tag.
	Image string

	// Timeout bounds one norminette invocation.
	Timeout time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Command: "norminette",
		Docker:  "docker",
		Image:   DefaultImage,
		Timeout: 2 * time.Minute,
	}
}

// Backend identifies how norminette was run.
type Backend string

const (
	BackendNone   Backend = "none"
	BackendNative Backend = "native"
	BackendDocker Backend = "docker"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Runner) {
		r.lookPath = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner invokes norminette.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Runner struct {
	cfg      Config
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, opts ...Option) *Runner {
	def := DefaultConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.Image == "" {
		cfg.Image = def.Image
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	r := &Runner{cfg: cfg, lookPath: exec.LookPath, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend reports which backend Run would use.
func (r *Runner) Backend() Backend {
	if _, err := r.lookPath(r.cfg.Command); err == nil {
		return BackendNative
	}
	if r.cfg.Docker != "" {
		if _, err := r.lookPath(r.cfg.Docker); err == nil {
			return BackendDocker
		}
	}
	return BackendNone
}

// Run checks files, all of which should live under dir.
//
// Description:
//
//	Invokes norminette once over every file and converts lines starting
//	with "Error:" or "Warning:" into advisories prefixed with
//	"[NORMINETTE]". Each advisory carries the file named by the preceding
//	"<file>: Error!" line. Tool problems are logged and produce no
//	advisories.
//
// Outputs:
//
//	[]policy.Advisory - Findings in norminette's output order.
//	error             - Only context cancellation.
func (r *Runner) Run(ctx context.Context, dir string, files []string) ([]policy.Advisory, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var (
		name string
		args []string
	)
	switch r.Backend() {
	case BackendNative:
		name = r.cfg.Command
		args = files
	case BackendDocker:
		rel, err := relativeTo(dir, files)
		if err != nil {
			r.logger.Debug("norminette container skipped", slog.String("error", err.Error()))
			return nil, nil
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, nil
		}
		name = r.cfg.Docker
		args = append([]string{"run", "--rm", "-v", abs + ":/code:ro", "-w", "/code", r.cfg.Image}, rel...)
	default:
		r.logger.Debug("norminette not available, skipping style check")
		return nil, nil
	}

	out, err := r.execute(ctx, dir, name, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("norminette did not run",
			slog.String("command", name),
			slog.String("error", err.Error()))
		return nil, nil
	}
	return Parse(out), nil
}

func (r *Runner) execute(ctx context.Context, dir, name string, args []string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	procgroup.Bind(cmd)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, errors.New("norminette timed out")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// norminette exits non-zero whenever it finds an issue.
	if err != nil && stdout.Len() == 0 {
		return nil, errors.New(strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Parse converts norminette output into advisories.
func Parse(out []byte) []policy.Advisory {
	var (
		advisories []policy.Advisory
		current    string
	)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Error:"), strings.HasPrefix(line, "Warning:"):
			advisories = append(advisories, policy.Advisory{
				Kind:    policy.AdvisoryNorminette,
				File:    current,
				Message: "[NORMINETTE] " + line,
			})
		case strings.HasSuffix(line, ": Error!"):
			current = strings.TrimSuffix(line, ": Error!")
		case strings.HasSuffix(line, ": OK!"):
			current = ""
		}
	}
	return advisories
}

func relativeTo(dir string, files []string) ([]string, error) {
	rel := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(r, "..") {
			return nil, errors.New(f + " is outside " + dir)
		}
		rel = append(rel, filepath.ToSlash(r))
	}
	return rel, nil
}
