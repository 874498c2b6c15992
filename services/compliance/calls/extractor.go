// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calls extracts statically named call sites from a syntax tree.
package calls

import (
	"context"
	"log/slog"
	"sort"

	"github.com/AleutianAI/check42/services/compliance/ast"
)

// MaxDepth caps the traversal depth. Deeper subtrees are not visited.
const MaxDepth = 4096

// Record is one directly named call.
type Record struct {
	Name string `json:"name"`
	Path string `json:"path"`

	// Line is where the first call to Name appears (1-indexed).
	Line int `json:"line"`
}

// Set is the deduplicated call set of one unit.
//
// A Set is built by a single Extract call and never shared between units.
type Set struct {
	Path    string            `json:"path"`
	Calls   map[string]Record `json:"calls"`
	Defined map[string]int    `json:"defined,omitempty"`

	// Truncated is true when MaxDepth cut the walk short.
	Truncated bool `json:"truncated,omitempty"`
}

func newSet(path string) *Set {
	return &Set{
		Path:    path,
		Calls:   make(map[string]Record),
		Defined: make(map[string]int),
	}
}

// Names returns the called names in lexicographic order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Calls))
	for name := range s.Calls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns the call records ordered by name.
func (s *Set) Records() []Record {
	out := make([]Record, 0, len(s.Calls))
	for _, name := range s.Names() {
		out = append(out, s.Calls[name])
	}
	return out
}

// DefinedNames returns the functions defined in the unit, sorted.
func (s *Set) DefinedNames() []string {
	names := make([]string, 0, len(s.Defined))
	for name := range s.Defined {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is called in the unit.
func (s *Set) Has(name string) bool {
	_, ok := s.Calls[name]
	return ok
}

type frame struct {
	node  ast.Node
	depth int
}

// Extract walks root and collects direct calls.
//
// Description:
//
//	A call is recorded only when its callee is a bare identifier; member
//	access, dereferenced pointers and any other computed callee are
//	ignored. Literal and comment subtrees are never entered, so names that
//	only appear in strings or comments are not reported. The walk uses an
//	explicit stack, so deeply nested expressions cannot exhaust the
//	goroutine stack.
//
// Inputs:
//
//	ctx    - Checked periodically; a cancelled walk returns what it found.
//	root   - Tree root. A nil root yields an empty set.
//	origin - Path stamped on every record.
//
// Outputs:
//
//	*Set - Fresh per call; safe to hand to another goroutine afterwards.
func Extract(ctx context.Context, root ast.Node, origin string) *Set {
	set := newSet(origin)
	if root == nil {
		return set
	}

	stack := []frame{{node: root}}
	visited := 0

	for len(stack) > 0 {
		visited++
		if visited%1024 == 0 && ctx.Err() != nil {
			return set
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := top.node

		switch node.Kind() {
		case ast.KindLiteral, ast.KindComment:
			continue
		case ast.KindCall:
			record(set, node, origin)
		case ast.KindFunctionDefinition:
			if name, ok := node.Name(); ok {
				if _, seen := set.Defined[name]; !seen {
					set.Defined[name] = node.Line()
				}
			}
		}

		if top.depth >= MaxDepth {
			if !set.Truncated {
				slog.Warn("call extraction depth limit reached",
					slog.String("file", origin),
					slog.Int("max_depth", MaxDepth))
			}
			set.Truncated = true
			continue
		}

		// Push in reverse so children are visited in source order.
		for i := node.ChildCount() - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, frame{node: child, depth: top.depth + 1})
			}
		}
	}
	return set
}

func record(set *Set, call ast.Node, origin string) {
	callee := call.Callee()
	if callee == nil || callee.Kind() != ast.KindIdentifier {
		return
	}
	name, ok := callee.Name()
	if !ok || name == "" {
		return
	}
	if _, seen := set.Calls[name]; seen {
		return
	}
	set.Calls[name] = Record{Name: name, Path: origin, Line: call.Line()}
}
