// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compliance

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/check42/services/compliance/ast"
	"github.com/AleutianAI/check42/services/compliance/normalize"
	"github.com/AleutianAI/check42/services/compliance/policy"
	"github.com/AleutianAI/check42/services/compliance/relink"
	"github.com/AleutianAI/check42/services/compliance/rules"
	"github.com/AleutianAI/check42/services/compliance/scan"
)

// =============================================================================
// FAKES
// =============================================================================

type node struct {
	kind     ast.Kind
	name     string
	line     int
	callee   *node
	children []*node
}

func (n *node) Kind() ast.Kind  { return n.kind }
func (n *node) ChildCount() int { return len(n.children) }
func (n *node) Line() int       { return n.line }

func (n *node) Child(i int) ast.Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

func (n *node) Callee() ast.Node {
	if n.callee == nil {
		return nil
	}
	return n.callee
}

func (n *node) Name() (string, bool) { return n.name, n.name != "" }

type tree struct{ root *node }

func (t tree) Root() ast.Node { return t.root }
func (t tree) Close()         {}

// callParser treats every "call NAME" line as a call site.
type callParser struct{}

func (callParser) Language() string { return "toy" }
func (callParser) Available() bool  { return true }

func (callParser) Parse(ctx context.Context, text []byte, _ string) (ast.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := &node{}
	sc := bufio.NewScanner(bytes.NewReader(text))
	for line := 1; sc.Scan(); line++ {
		f := strings.Fields(sc.Text())
		if len(f) == 2 && f[0] == "call" {
			id := &node{kind: ast.KindIdentifier, name: f[1], line: line}
			root.children = append(root.children, &node{kind: ast.KindCall, line: line, callee: id, children: []*node{id}})
		}
	}
	return tree{root: root}, nil
}

type passthrough struct{}

func (passthrough) Available() bool { return true }
func (passthrough) Command() string { return "cpp" }

func (passthrough) Normalize(ctx context.Context, _ string, raw []byte) (normalize.Result, error) {
	if err := ctx.Err(); err != nil {
		return normalize.Result{}, err
	}
	return normalize.Result{Text: raw, Mode: normalize.ModePreprocessed}, nil
}

type fakeVerifier struct {
	result relink.Result
	calls  int
}

func (v *fakeVerifier) Verify(ctx context.Context, _, _ string) (relink.Result, error) {
	v.calls++
	if err := ctx.Err(); err != nil {
		return relink.Result{}, err
	}
	return v.result, nil
}

type fakeStyle struct{ advisories []policy.Advisory }

func (s fakeStyle) Run(context.Context, string, []string) ([]policy.Advisory, error) {
	return s.advisories, nil
}

// =============================================================================
// FIXTURES
// =============================================================================

const testRules = `
version: 1
projects:
  - name: mini_lib
    allowed_functions: [write, malloc, free]
    artifact: mini.a
    required_paths: [Makefile]
`

const goodReadme = `*This project has been created as part of the 42 curriculum by student.*

# Description
A tiny library.

# Instructions
Run make.

# Resources
No AI tools were used.
`

const header = "/*   By: student <student@42.fr>   */\n"

func testRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg, err := rules.Load([]byte(testRules))
	require.NoError(t, err)
	return reg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func compliantProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), goodReadme)
	writeFile(t, filepath.Join(dir, "Makefile"), "all:\n")
	writeFile(t, filepath.Join(dir, "src", "put.c"), header+"call write\n")
	writeFile(t, filepath.Join(dir, "inc", "mini.h"), header)
	return dir
}

func newTestChecker(t *testing.T, opts ...Option) *Checker {
	t.Helper()
	scanner := scan.New(passthrough{}, callParser{}, scan.WithWorkers(2))
	return NewChecker(testRegistry(t), scanner, opts...)
}

func kinds(vs []policy.Violation) []policy.ViolationKind {
	out := make([]policy.ViolationKind, len(vs))
	for i, v := range vs {
		out[i] = v.Kind
	}
	return out
}

// =============================================================================
// TESTS
// =============================================================================

func TestCheck_Compliant(t *testing.T) {
	verifier := &fakeVerifier{result: relink.Result{State: relink.StatePassed}}
	c := newTestChecker(t, WithVerifier(verifier))

	report, err := c.Check(context.Background(), Request{Directory: compliantProject(t), Project: "Mini-Lib"})
	require.NoError(t, err)

	assert.True(t, report.Compliant)
	assert.Equal(t, ExitCompliant, report.ExitCode())
	assert.Empty(t, report.Violations)
	assert.NotNil(t, report.Violations)
	assert.Equal(t, "mini_lib", report.Project)
	assert.Equal(t, 1, report.FilesAnalyzed)
	assert.Equal(t, "passed", report.Relink)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, verifier.calls)
}

func TestCheck_ViolationOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.c"), header+"call printf\ncall write\n")
	writeFile(t, filepath.Join(dir, "a.c"), "call puts\n")

	verifier := &fakeVerifier{result: relink.Result{
		State: relink.StateFailed,
		Violations: []policy.Violation{
			policy.NewViolation(policy.KindRelinkDetected, "mini.a", "Relink detected: mini.a was rebuilt"),
		},
	}}
	style := fakeStyle{advisories: []policy.Advisory{
		policy.NewAdvisory(policy.AdvisoryNorminette, "a.c", "a.c: Error: INVALID_HEADER"),
	}}
	c := newTestChecker(t, WithVerifier(verifier), WithStyleRunner(style))

	report, err := c.Check(context.Background(), Request{Directory: dir, Project: "mini_lib"})
	require.NoError(t, err)

	assert.False(t, report.Compliant)
	assert.Equal(t, ExitViolations, report.ExitCode())
	assert.Equal(t, []policy.ViolationKind{
		policy.KindMissingReadme,
		policy.KindMissingPath,
		policy.KindMissingHeader,
		policy.KindForbiddenCall,
		policy.KindForbiddenCall,
		policy.KindRelinkDetected,
	}, kinds(report.Violations))

	assert.Equal(t, filepath.Join(dir, "a.c"), report.Violations[2].File)
	assert.Contains(t, report.Violations[3].Message, "puts")
	assert.Contains(t, report.Violations[4].Message, "printf")

	require.NotEmpty(t, report.Advisories)
	last := report.Advisories[len(report.Advisories)-1]
	assert.Equal(t, policy.AdvisoryNorminette, last.Kind)
	assert.Len(t, report.Messages(), len(report.Violations))
}

func TestCheck_SkipBuildAndStyle(t *testing.T) {
	verifier := &fakeVerifier{result: relink.Result{State: relink.StatePassed}}
	style := fakeStyle{advisories: []policy.Advisory{policy.NewAdvisory(policy.AdvisoryNorminette, "", "x")}}
	c := newTestChecker(t, WithVerifier(verifier), WithStyleRunner(style))

	report, err := c.Check(context.Background(), Request{
		Directory: compliantProject(t),
		Project:   "mini_lib",
		SkipBuild: true,
		SkipStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, verifier.calls)
	assert.Equal(t, "skipped", report.Relink)
	assert.Empty(t, report.Advisories)
}

func TestCheck_Errors(t *testing.T) {
	c := newTestChecker(t)

	_, err := c.Check(context.Background(), Request{Directory: t.TempDir(), Project: "minitalk"})
	assert.ErrorIs(t, err, rules.ErrUnknownProject)

	_, err = c.Check(context.Background(), Request{Directory: filepath.Join(t.TempDir(), "nope"), Project: "mini_lib"})
	assert.ErrorIs(t, err, ErrInvalidDirectory)

	file := filepath.Join(t.TempDir(), "file.c")
	writeFile(t, file, header)
	_, err = c.Check(context.Background(), Request{Directory: file, Project: "mini_lib"})
	assert.ErrorIs(t, err, ErrInvalidDirectory)
}

func TestCheck_Cancelled(t *testing.T) {
	c := newTestChecker(t, WithVerifier(&fakeVerifier{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.Check(ctx, Request{Directory: compliantProject(t), Project: "mini_lib"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestWithoutReported(t *testing.T) {
	headers := []policy.Violation{
		policy.NewViolation(policy.KindUnreadableFile, "a.c", "Cannot read a.c: denied"),
		policy.NewViolation(policy.KindMissingHeader, "b.c", "Missing 42 header in: b.c"),
	}
	unreadable := []policy.Violation{
		policy.NewViolation(policy.KindUnreadableFile, "a.c", "Cannot read a.c: denied"),
		policy.NewViolation(policy.KindUnreadableFile, "c.c", "Cannot read c.c: denied"),
	}
	got := withoutReported(unreadable, headers)
	require.Len(t, got, 1)
	assert.Equal(t, "c.c", got[0].File)
}
