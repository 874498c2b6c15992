// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compliance runs the full check of a 42 submission.
//
// A Checker resolves the project policy, then runs the checks in report
// order: README, required paths, 42 headers, forbidden calls and the relink
// test. Norminette findings are appended as advisories last. Every check
// runs even when an earlier one fails so a report lists all problems at once.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/check42/services/compliance/layout"
	"github.com/AleutianAI/check42/services/compliance/norm"
	"github.com/AleutianAI/check42/services/compliance/policy"
	"github.com/AleutianAI/check42/services/compliance/readme"
	"github.com/AleutianAI/check42/services/compliance/relink"
	"github.com/AleutianAI/check42/services/compliance/rules"
	"github.com/AleutianAI/check42/services/compliance/scan"
)

var tracer = otel.Tracer("check42.compliance")

// ErrInvalidDirectory is returned when the submission folder is missing or
// not a directory.
var ErrInvalidDirectory = errors.New("invalid submission directory")

// RelinkVerifier is the build check. *relink.Verifier satisfies it.
type RelinkVerifier interface {
	Verify(ctx context.Context, dir, artifact string) (relink.Result, error)
}

// StyleRunner produces norminette advisories. *norm.Runner satisfies it.
type StyleRunner interface {
	Run(ctx context.Context, dir string, files []string) ([]policy.Advisory, error)
}

var (
	_ RelinkVerifier = (*relink.Verifier)(nil)
	_ StyleRunner    = (*norm.Runner)(nil)
)

// Option configures a Checker.
type Option func(*Checker)

// WithVerifier enables the relink check.
func WithVerifier(v RelinkVerifier) Option {
	return func(c *Checker) {
		c.verifier = v
	}
}

// WithStyleRunner enables norminette advisories.
func WithStyleRunner(r StyleRunner) Option {
	return func(c *Checker) {
		c.style = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Checker runs compliance checks against a project registry.
//
// Thread Safety:
//
//	Safe for concurrent use. Relink checks of the same directory are
//	serialized by the relink package; the source checks only read.
type Checker struct {
	registry *rules.Registry
	scanner  *scan.Scanner
	verifier RelinkVerifier
	style    StyleRunner
	logger   *slog.Logger
}

// NewChecker creates a Checker. Without WithVerifier the relink check is
// skipped; without WithStyleRunner no norminette advisories are produced.
func NewChecker(registry *rules.Registry, scanner *scan.Scanner, opts ...Option) *Checker {
	c := &Checker{
		registry: registry,
		scanner:  scanner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the project table the checker resolves names against.
func (c *Checker) Registry() *rules.Registry {
	return c.registry
}

// Request selects what to check.
type Request struct {
	// Directory is the submission folder.
	Directory string

	// Project is a project name in any case or separator style.
	Project string

	// SkipBuild disables the relink check for this run.
	SkipBuild bool

	// SkipStyle disables norminette for this run.
	SkipStyle bool
}

// Check runs every check for req.
//
// Description:
//
//	Unknown projects and unusable directories fail before any analysis.
//	Per-file problems become violations or advisories and never abort the
//	run. A cancelled context aborts with ctx.Err() and no report.
//
// Outputs:
//
//	*Report - Ordered findings and the verdict.
//	error   - ErrUnknownProject, ErrInvalidDirectory or cancellation.
func (c *Checker) Check(ctx context.Context, req Request) (*Report, error) {
	pol, err := c.registry.Resolve(req.Project)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(req.Directory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidDirectory, dir)
	}

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Checker.Check",
		trace.WithAttributes(
			attribute.String("check.run_id", runID),
			attribute.String("check.project", pol.Key()),
		),
	)
	defer span.End()

	logger := c.logger.With(slog.String("run_id", runID), slog.String("project", pol.Key()))
	start := time.Now()

	report := &Report{
		RunID:      runID,
		Project:    pol.Name(),
		Directory:  dir,
		Violations: []policy.Violation{},
		Advisories: []policy.Advisory{},
		StartedAt:  start.UTC(),
	}

	readmeViolations, readmeAdvisories := readme.Check(dir)
	report.Violations = append(report.Violations, readmeViolations...)
	report.Advisories = append(report.Advisories, readmeAdvisories...)

	report.Violations = append(report.Violations, layout.CheckRequiredPaths(dir, pol.RequiredPaths())...)

	sources, err := layout.Discover(ctx, dir)
	if err != nil {
		return nil, c.abort(span, err)
	}

	headerViolations := layout.CheckHeaders(sources.All)
	report.Violations = append(report.Violations, headerViolations...)

	units, unreadable := scan.ReadUnits(sources.C)
	report.Violations = append(report.Violations, withoutReported(unreadable, headerViolations)...)

	scanned, err := c.scanner.Scan(ctx, units, pol)
	if err != nil {
		return nil, c.abort(span, err)
	}
	report.Violations = append(report.Violations, scanned.Violations...)
	report.Advisories = append(report.Advisories, scanned.Advisories...)
	report.FilesAnalyzed = scanned.Analyzed
	report.CacheHits = scanned.CacheHits

	report.Relink = relink.StateSkipped.String()
	if c.verifier != nil && !req.SkipBuild {
		res, err := c.verifier.Verify(ctx, dir, pol.Artifact())
		if err != nil {
			return nil, c.abort(span, err)
		}
		report.Relink = res.State.String()
		report.Violations = append(report.Violations, res.Violations...)
		report.Advisories = append(report.Advisories, res.Advisories...)
	}

	if c.style != nil && !req.SkipStyle {
		advisories, err := c.style.Run(ctx, dir, sources.All)
		if err != nil {
			return nil, c.abort(span, err)
		}
		report.Advisories = append(report.Advisories, advisories...)
	}

	report.Compliant = len(report.Violations) == 0
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("check.violations", len(report.Violations)),
		attribute.Int("check.advisories", len(report.Advisories)),
		attribute.Bool("check.compliant", report.Compliant),
	)
	recordCheck(ctx, report)

	logger.Info("compliance check finished",
		slog.Bool("compliant", report.Compliant),
		slog.Int("violations", len(report.Violations)),
		slog.Int("advisories", len(report.Advisories)),
		slog.Int("files", report.FilesAnalyzed),
		slog.Duration("duration", report.Duration))

	return report, nil
}

func (c *Checker) abort(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// withoutReported drops unreadable-file violations for files the header
// check already reported as unreadable.
func withoutReported(unreadable, reported []policy.Violation) []policy.Violation {
	seen := make(map[string]struct{}, len(reported))
	for _, v := range reported {
		if v.Kind == policy.KindUnreadableFile {
			seen[v.File] = struct{}{}
		}
	}
	out := make([]policy.Violation, 0, len(unreadable))
	for _, v := range unreadable {
		if _, dup := seen[v.File]; dup {
			continue
		}
		out = append(out, v)
	}
	return out
}
