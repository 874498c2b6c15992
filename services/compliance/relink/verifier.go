// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relink detects builds that re-link an up-to-date artifact.
//
// The protocol: make sure the artifact exists, sample its modification time,
// wait long enough for a rebuild to produce a distinguishable timestamp, run
// the build again and compare. A correct Makefile leaves the artifact alone.
package relink

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/check42/services/compliance/policy"
)

// DefaultSettle exceeds the one-second mtime granularity of common filesystems.
const DefaultSettle = 1100 * time.Millisecond

var tracer = otel.Tracer("check42.relink")

// State is the terminal state of a verification.
type State int

const (
	// StateSkipped means no verification happened (no artifact declared or
	// no build tool). Skips with a cause carry an advisory.
	StateSkipped State = iota

	// StatePassed means the rebuild left the artifact untouched.
	StatePassed

	// StateFailed means a violation was recorded.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// ArtifactState is one sample of the artifact.
type ArtifactState struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// Result is the outcome of Verify.
type Result struct {
	State      State              `json:"state"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Advisories []policy.Advisory  `json:"advisories,omitempty"`
	Before     *ArtifactState     `json:"before,omitempty"`
	After      *ArtifactState     `json:"after,omitempty"`
}

// Sleeper waits for a duration or until ctx is done.
//
// # Description
//
// Injected so tests can run the protocol without real waits.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithSleeper replaces the real sleeper.
func WithSleeper(s Sleeper) Option {
	return func(v *Verifier) {
		v.sleeper = s
	}
}

// WithSettle sets the wait between the timestamp sample and the rebuild.
func WithSettle(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// Verifier runs the relink protocol.
//
// # Thread Safety
//
// Safe for concurrent use. Verify calls on the same directory, from any
// Verifier, run one at a time.
type Verifier struct {
	builder Builder
	sleeper Sleeper
	settle  time.Duration
	logger  *slog.Logger
	tool    string
}

// New creates a Verifier around builder.
func New(builder Builder, opts ...Option) *Verifier {
	v := &Verifier{
		builder: builder,
		sleeper: realSleeper{},
		settle:  DefaultSettle,
		logger:  slog.Default(),
		tool:    "make",
	}
	if mb, ok := builder.(*MakeBuilder); ok {
		v.tool = mb.Command()
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks that rebuilding dir leaves artifact untouched.
//
// # Description
//
// Absent artifact: build once; still absent is a build failure. Present:
// sample the mtime, settle, rebuild. A failing rebuild, a vanished artifact
// or a changed mtime are violations. An empty artifact name skips the check
// without any finding.
//
// # Inputs
//
//   - ctx: Cancellation. Aborts the protocol with ctx.Err().
//   - dir: Build directory handed to the builder.
//   - artifact: Artifact path relative to dir.
//
// # Outputs
//
//   - Result: Terminal state and findings.
//   - error: Only a cancelled context.
//
// Concurrent calls for one directory wait for each other, so each sees a
// build directory nobody else is rebuilding.
func (v *Verifier) Verify(ctx context.Context, dir, artifact string) (Result, error) {
	if artifact == "" {
		return Result{State: StateSkipped}, nil
	}

	ctx, span := tracer.Start(ctx, "Verifier.Verify",
		trace.WithAttributes(
			attribute.String("relink.dir", dir),
			attribute.String("relink.artifact", artifact),
		),
	)
	defer span.End()

	release, err := buildDirs.acquire(ctx, dirKey(dir))
	if err != nil {
		return Result{}, err
	}
	defer release()

	res, err := v.verify(ctx, dir, artifact)
	span.SetAttributes(attribute.String("relink.state", res.State.String()))
	return res, err
}

func (v *Verifier) verify(ctx context.Context, dir, artifact string) (Result, error) {
	target := filepath.Join(dir, artifact)

	before, err := sample(target)
	if errors.Is(err, fs.ErrNotExist) {
		v.logger.Info("artifact not found, running initial build",
			slog.String("artifact", artifact),
			slog.String("dir", dir))

		build, err := v.builder.Build(ctx, dir)
		if err != nil {
			return Result{}, err
		}
		if build.Reason == ReasonToolUnavailable {
			return v.toolUnavailable(artifact), nil
		}
		if build.Reason == ReasonTimeout {
			return failed(policy.NewViolation(policy.KindBuildFailed, artifact,
				"%s timed out while building '%s'", v.tool, artifact)), nil
		}

		before, err = sample(target)
		if err != nil {
			v.logger.Debug("initial build did not produce artifact",
				slog.String("artifact", artifact),
				slog.String("output", build.Output))
			return failed(policy.NewViolation(policy.KindBuildFailed, artifact,
				"%s did not produce '%s'", v.tool, artifact)), nil
		}
	} else if err != nil {
		return failed(policy.NewViolation(policy.KindBuildFailed, artifact,
			"cannot stat '%s': %v", artifact, err)), nil
	}

	if err := v.sleeper.Sleep(ctx, v.settle); err != nil {
		return Result{}, err
	}

	build, err := v.builder.Build(ctx, dir)
	if err != nil {
		return Result{}, err
	}

	res := Result{Before: before}
	switch build.Reason {
	case ReasonNone:
	case ReasonToolUnavailable:
		return v.toolUnavailable(artifact), nil
	case ReasonTimeout:
		res.State = StateFailed
		res.Violations = append(res.Violations, policy.NewViolation(policy.KindBuildFailed, artifact,
			"%s timed out while rebuilding '%s'", v.tool, artifact))
		return res, nil
	default:
		res.State = StateFailed
		res.Violations = append(res.Violations, policy.NewViolation(policy.KindBuildFailed, artifact,
			"%s failed:\n%s", v.tool, build.Output))
		return res, nil
	}

	after, err := sample(target)
	if err != nil {
		res.State = StateFailed
		res.Violations = append(res.Violations, policy.NewViolation(policy.KindBuildFailed, artifact,
			"'%s' disappeared after rebuild", artifact))
		return res, nil
	}
	res.After = after

	if !after.ModTime.Equal(before.ModTime) {
		v.logger.Info("relink detected",
			slog.String("artifact", artifact),
			slog.Time("before", before.ModTime),
			slog.Time("after", after.ModTime))
		res.State = StateFailed
		res.Violations = append(res.Violations, policy.NewViolation(policy.KindRelinkDetected, artifact,
			"relink detected: '%s' was rebuilt unnecessarily", artifact))
		return res, nil
	}

	res.State = StatePassed
	return res, nil
}

func (v *Verifier) toolUnavailable(artifact string) Result {
	return Result{
		State: StateSkipped,
		Advisories: []policy.Advisory{policy.NewAdvisory(policy.AdvisoryBuildToolUnavailable, artifact,
			"%s not found: relink check for '%s' skipped", v.tool, artifact)},
	}
}

func failed(v policy.Violation) Result {
	return Result{State: StateFailed, Violations: []policy.Violation{v}}
}

func sample(path string) (*ArtifactState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &ArtifactState{Path: path, ModTime: info.ModTime()}, nil
}
