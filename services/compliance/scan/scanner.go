// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan runs the forbidden-call pipeline over a set of C units.
//
// Each unit is normalized, parsed and reduced to its call set on a bounded
// worker pool. Workers write into their own result slot, and evaluation
// happens after every worker is done, walking slots in input order, so the
// output is identical for any worker count.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/check42/services/compliance/ast"
	"github.com/AleutianAI/check42/services/compliance/calls"
	"github.com/AleutianAI/check42/services/compliance/normalize"
	"github.com/AleutianAI/check42/services/compliance/policy"
)

// Unit is one source file, read once per run.
type Unit struct {
	Path    string
	Content []byte
}

// ReadUnits reads every path. Files that cannot be read become
// unreadable-file violations and are left out of the returned units.
func ReadUnits(paths []string) ([]Unit, []policy.Violation) {
	units := make([]Unit, 0, len(paths))
	var violations []policy.Violation
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			violations = append(violations, policy.NewViolation(policy.KindUnreadableFile, p,
				"Cannot read %s: %v", p, err))
			continue
		}
		units = append(units, Unit{Path: p, Content: data})
	}
	return units, violations
}

// Normalizer produces the text handed to the parser.
type Normalizer interface {
	Normalize(ctx context.Context, path string, raw []byte) (normalize.Result, error)
	Available() bool
	Command() string
}

// CallCache stores call sets by content key.
type CallCache interface {
	Lookup(ctx context.Context, key, path string) (*calls.Set, bool)
	Save(ctx context.Context, key string, set *calls.Set) error
}

// KeyFunc derives a cache key from the grammar name and normalized text.
type KeyFunc func(grammar string, text []byte) string

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers bounds the number of units analyzed concurrently.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCache enables the call-set cache.
func WithCache(c CallCache, key KeyFunc) Option {
	return func(s *Scanner) {
		s.cache = c
		s.key = key
	}
}

// WithAllowDefined treats functions defined anywhere in the submission as
// allowed.
func WithAllowDefined(enabled bool) Option {
	return func(s *Scanner) {
		s.allowDefined = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// Scanner runs the forbidden-call check.
//
// Thread Safety:
//
//	Safe for concurrent use; all per-run state lives in Scan.
type Scanner struct {
	normalizer   Normalizer
	parser       ast.Parser
	cache        CallCache
	key          KeyFunc
	workers      int
	allowDefined bool
	logger       *slog.Logger
}

// New creates a Scanner.
func New(normalizer Normalizer, parser ast.Parser, opts ...Option) *Scanner {
	s := &Scanner{
		normalizer: normalizer,
		parser:     parser,
		workers:    runtime.NumCPU(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileResult is the per-unit outcome.
type FileResult struct {
	Path string `json:"path"`

	// Set is nil when the unit was skipped.
	Set *calls.Set `json:"-"`

	Mode       normalize.Mode     `json:"-"`
	Cached     bool               `json:"cached,omitempty"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Advisories []policy.Advisory  `json:"advisories,omitempty"`
}

// Result is the outcome of a scan.
type Result struct {
	Files      []FileResult       `json:"files"`
	Violations []policy.Violation `json:"violations"`
	Advisories []policy.Advisory  `json:"advisories"`
	Analyzed   int                `json:"analyzed"`
	Skipped    int                `json:"skipped"`
	CacheHits  int                `json:"cache_hits"`
	Duration   time.Duration      `json:"duration"`
}

// Scan analyzes units against allowed.
//
// Description:
//
//	Runs normalize, parse and extract for every unit on the worker pool,
//	then evaluates each call set against the allow-list in input order.
//	Units the grammar rejects are skipped with a parse-failure advisory.
//	When the grammar engine is missing, nothing is analyzed and a single
//	grammar-unavailable advisory is returned.
//
// Inputs:
//
//	ctx     - Cancellation. A cancelled scan returns ctx.Err() and no result.
//	units   - C translation units in report order.
//	allowed - The project's allow-list.
//
// Outputs:
//
//	*Result - Violations ordered by unit, then by name.
//	error   - Only cancellation.
func (s *Scanner) Scan(ctx context.Context, units []Unit, allowed policy.AllowList) (*Result, error) {
	ctx, span := startScanSpan(ctx, len(units))
	defer span.End()

	start := time.Now()
	res := &Result{Files: make([]FileResult, len(units))}

	if len(units) == 0 {
		return res, nil
	}

	if !s.parser.Available() {
		res.Advisories = append(res.Advisories, policy.NewAdvisory(policy.AdvisoryGrammarUnavailable, "",
			"C grammar unavailable in this build: forbidden-call check skipped for %d file(s)", len(units)))
		for i, u := range units {
			res.Files[i] = FileResult{Path: u.Path}
		}
		res.Skipped = len(units)
		return res, nil
	}

	if !s.normalizer.Available() {
		res.Advisories = append(res.Advisories, policy.NewAdvisory(policy.AdvisoryPreprocessorFallback, "",
			"%s not found: sources analyzed without macro expansion", s.normalizer.Command()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, u := range units {
		g.Go(func() error {
			fr, err := s.analyze(gctx, u)
			if err != nil {
				return err
			}
			res.Files[i] = fr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.evaluate(res, allowed)
	res.Duration = time.Since(start)
	recordScan(ctx, res)
	return res, nil
}

// analyze runs the per-unit stages. Only cancellation is returned as an error.
func (s *Scanner) analyze(ctx context.Context, u Unit) (FileResult, error) {
	fr := FileResult{Path: u.Path}

	norm, err := s.normalizer.Normalize(ctx, u.Path, u.Content)
	if err != nil {
		return fr, err
	}
	fr.Mode = norm.Mode
	if norm.FellBack() && norm.Reason != normalize.ReasonUnavailable {
		detail := norm.Reason.String()
		if norm.Detail != "" {
			detail = fmt.Sprintf("%s: %s", detail, norm.Detail)
		}
		fr.Advisories = append(fr.Advisories, policy.NewAdvisory(policy.AdvisoryPreprocessorFallback, u.Path,
			"%s analyzed without macro expansion (%s)", u.Path, detail))
	}

	var key string
	if s.cache != nil && s.key != nil {
		key = s.key(s.parser.Language(), norm.Text)
		if set, ok := s.cache.Lookup(ctx, key, u.Path); ok {
			fr.Set = set
			fr.Cached = true
			s.noteTruncation(&fr)
			return fr, nil
		}
	}

	tree, err := s.parser.Parse(ctx, norm.Text, u.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fr, ctxErr
		}
		if errors.Is(err, ast.ErrGrammarUnavailable) {
			fr.Advisories = append(fr.Advisories, policy.NewAdvisory(policy.AdvisoryGrammarUnavailable, u.Path,
				"%s skipped: C grammar unavailable", u.Path))
			return fr, nil
		}
		s.logger.Warn("could not parse source",
			slog.String("file", u.Path),
			slog.String("error", err.Error()))
		fr.Advisories = append(fr.Advisories, policy.NewAdvisory(policy.AdvisoryParseFailure, u.Path,
			"Could not parse %s: %v", u.Path, parseReason(err)))
		return fr, nil
	}
	defer tree.Close()

	set := calls.Extract(ctx, tree.Root(), u.Path)
	if err := ctx.Err(); err != nil {
		return fr, err
	}
	fr.Set = set
	s.noteTruncation(&fr)

	if key != "" {
		if err := s.cache.Save(ctx, key, set); err != nil {
			s.logger.Debug("call-set cache write failed",
				slog.String("file", u.Path),
				slog.String("error", err.Error()))
		}
	}
	return fr, nil
}

// noteTruncation flags a unit whose call set, fresh or cached, came from a
// depth-limited walk.
func (s *Scanner) noteTruncation(fr *FileResult) {
	if fr.Set == nil || !fr.Set.Truncated {
		return
	}
	fr.Advisories = append(fr.Advisories, policy.NewAdvisory(policy.AdvisoryTruncated, fr.Path,
		"%s is nested too deeply: some calls were not analyzed", fr.Path))
}

// evaluate applies the allow-list to every analyzed unit in input order.
func (s *Scanner) evaluate(res *Result, allowed policy.AllowList) {
	effective := allowed
	if s.allowDefined {
		defined := policy.NewAllowSet()
		for _, fr := range res.Files {
			if fr.Set == nil {
				continue
			}
			for name := range fr.Set.Defined {
				defined[name] = struct{}{}
			}
		}
		effective = policy.Union(allowed, defined)
	}

	for i := range res.Files {
		fr := &res.Files[i]
		if fr.Set == nil {
			res.Skipped++
		} else {
			res.Analyzed++
			if fr.Cached {
				res.CacheHits++
			}
			fr.Violations = policy.Evaluate(fr.Path, fr.Set.Names(), effective)
		}
		res.Violations = append(res.Violations, fr.Violations...)
		res.Advisories = append(res.Advisories, fr.Advisories...)
	}
}

func parseReason(err error) string {
	var perr *ast.ParseError
	if errors.As(err, &perr) && perr.Line > 0 {
		return fmt.Sprintf("%s at line %d", perr.Message, perr.Line)
	}
	return err.Error()
}
