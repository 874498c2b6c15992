// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build cgo

package ast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// CParser parses C with the tree-sitter C grammar.
//
// Description:
//
//	A new tree-sitter parser is created per Parse call, so a single CParser
//	can serve every worker of a scan. A tree containing any error or missing
//	node is rejected with a *ParseError located at the first such node.
//
// Thread Safety:
//
//	Safe for concurrent use.
type CParser struct {
	maxSize int
}

// NewCParser returns a parser backed by the tree-sitter C grammar.
func NewCParser(opts ...CParserOption) *CParser {
	p := &CParser{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language implements Parser.
func (p *CParser) Language() string { return "c" }

// Available implements Parser.
func (p *CParser) Available() bool { return true }

// Parse implements Parser.
//
// Inputs:
//
//	ctx    - Cancellation; checked before and after the grammar runs.
//	text   - Normalized C text.
//	origin - Path used in errors and spans.
//
// Outputs:
//
//	Tree  - Caller must Close it.
//	error - *ParseError wrapping ErrParseFailed, ErrInvalidContent or a
//	        context error.
func (p *CParser) Parse(ctx context.Context, text []byte, origin string) (Tree, error) {
	ctx, span := startParseSpan(ctx, p.Language(), origin, len(text))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if text == nil {
		recordParseMetrics(ctx, p.Language(), time.Since(start), false)
		return nil, fmt.Errorf("%w: nil text for %s", ErrInvalidContent, origin)
	}
	if len(text) > p.maxSize {
		recordParseMetrics(ctx, p.Language(), time.Since(start), false)
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrInvalidContent, origin, len(text), p.maxSize)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, text)
	if err != nil {
		recordParseMetrics(ctx, p.Language(), time.Since(start), false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("parse canceled: %w", ctxErr)
		}
		return nil, &ParseError{FilePath: origin, Message: err.Error(), Cause: ErrParseFailed}
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		recordParseMetrics(ctx, p.Language(), time.Since(start), false)
		return nil, &ParseError{FilePath: origin, Message: "grammar returned no root", Cause: ErrParseFailed}
	}

	if root.HasError() {
		perr := locateError(root, origin)
		tree.Close()
		recordParseMetrics(ctx, p.Language(), time.Since(start), false)
		slog.Debug("C parse rejected",
			slog.String("file", origin),
			slog.Int("line", perr.Line))
		return nil, perr
	}

	recordParseMetrics(ctx, p.Language(), time.Since(start), true)
	return &cTree{tree: tree, src: text}, nil
}

// locateError finds the first error or missing node in document order.
func locateError(root *sitter.Node, origin string) *ParseError {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsError() || n.IsMissing() {
			msg := "syntax error"
			if n.IsMissing() {
				msg = fmt.Sprintf("missing %s", n.Type())
			}
			return &ParseError{
				FilePath: origin,
				Line:     int(n.StartPoint().Row + 1),
				Column:   int(n.StartPoint().Column + 1),
				Message:  msg,
				Cause:    ErrParseFailed,
			}
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return &ParseError{FilePath: origin, Message: "syntax error", Cause: ErrParseFailed}
}

// =============================================================================
// TREE ADAPTER
// =============================================================================

type cTree struct {
	tree *sitter.Tree
	src  []byte
}

func (t *cTree) Root() Node {
	return &cNode{n: t.tree.RootNode(), src: t.src}
}

func (t *cTree) Close() {
	t.tree.Close()
}

type cNode struct {
	n   *sitter.Node
	src []byte
}

func wrap(n *sitter.Node, src []byte) Node {
	if n == nil || n.IsNull() {
		return nil
	}
	return &cNode{n: n, src: src}
}

func (n *cNode) Kind() Kind {
	switch n.n.Type() {
	case "call_expression":
		return KindCall
	case "identifier":
		return KindIdentifier
	case "field_expression":
		return KindFieldAccess
	case "string_literal", "char_literal", "concatenated_string", "system_lib_string":
		return KindLiteral
	case "comment":
		return KindComment
	case "function_definition":
		return KindFunctionDefinition
	default:
		return KindOther
	}
}

func (n *cNode) ChildCount() int {
	return int(n.n.ChildCount())
}

func (n *cNode) Child(i int) Node {
	if i < 0 || i >= n.ChildCount() {
		return nil
	}
	return wrap(n.n.Child(i), n.src)
}

func (n *cNode) Callee() Node {
	if n.n.Type() != "call_expression" {
		return nil
	}
	return wrap(n.n.ChildByFieldName("function"), n.src)
}

func (n *cNode) Name() (string, bool) {
	switch n.n.Type() {
	case "identifier":
		return n.n.Content(n.src), true
	case "function_definition":
		return definedName(n.n, n.src)
	default:
		return "", false
	}
}

func (n *cNode) Line() int {
	return int(n.n.StartPoint().Row + 1)
}

// definedName digs through pointer and parenthesized declarators down to the
// function declarator, e.g. `char *(ft_strdup)(const char *s)`.
func definedName(def *sitter.Node, src []byte) (string, bool) {
	d := def.ChildByFieldName("declarator")
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			inner := d.ChildByFieldName("declarator")
			for inner != nil && inner.Type() == "parenthesized_declarator" && inner.NamedChildCount() > 0 {
				inner = inner.NamedChild(0)
			}
			if inner != nil && inner.Type() == "identifier" {
				return inner.Content(src), true
			}
			return "", false
		case "pointer_declarator", "attributed_declarator":
			d = d.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			if d.NamedChildCount() == 0 {
				return "", false
			}
			d = d.NamedChild(0)
		default:
			return "", false
		}
	}
	return "", false
}

var _ Parser = (*CParser)(nil)
