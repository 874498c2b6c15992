// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast builds syntax trees for normalized C text.
//
// Consumers never see the grammar engine directly. They walk trees through
// the Node capability set (kind, children, callee, identifier name) so that
// extraction logic can be exercised against hand-built trees in tests and the
// grammar backend can be swapped without touching callers.
package ast

import (
	"context"
)

// Kind classifies a node for call-site extraction.
type Kind int

const (
	// KindOther is any node the extractor has no special handling for.
	KindOther Kind = iota

	// KindCall is a function call expression.
	KindCall

	// KindIdentifier is a bare identifier.
	KindIdentifier

	// KindFieldAccess is a member access (s.f or p->f).
	KindFieldAccess

	// KindLiteral is a string or character literal.
	KindLiteral

	// KindComment is a source comment.
	KindComment

	// KindFunctionDefinition is a function definition with a body.
	KindFunctionDefinition
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindIdentifier:
		return "identifier"
	case KindFieldAccess:
		return "field_access"
	case KindLiteral:
		return "literal"
	case KindComment:
		return "comment"
	case KindFunctionDefinition:
		return "function_definition"
	default:
		return "other"
	}
}

// Node is the read-only view of a syntax tree node.
//
// Description:
//
//	The capability set needed to find call sites: what the node is, how to
//	reach its children, which child is the callee of a call, and the name
//	of an identifier.
//
// Thread Safety:
//
//	Nodes are only valid until their Tree is closed and must not be shared
//	across goroutines.
type Node interface {
	// Kind classifies the node.
	Kind() Kind

	// ChildCount returns the number of children.
	ChildCount() int

	// Child returns the i-th child, or nil when out of range.
	Child(i int) Node

	// Callee returns the called expression of a KindCall node, or nil.
	Callee() Node

	// Name returns the identifier text for KindIdentifier nodes. For a
	// KindFunctionDefinition it returns the defined function's name when
	// the declarator is a plain identifier.
	Name() (string, bool)

	// Line returns the 1-indexed line the node starts on.
	Line() int
}

// Tree is a parsed unit.
type Tree interface {
	// Root returns the translation-unit node.
	Root() Node

	// Close releases resources held by the grammar engine.
	Close()
}

// Parser builds syntax trees.
//
// Description:
//
//	A Parser turns normalized C text into a Tree. A text the grammar cannot
//	fully accept yields a *ParseError wrapping ErrParseFailed; a build
//	without a grammar engine yields ErrGrammarUnavailable for every call.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Parser interface {
	// Parse builds a tree for text. origin labels errors and spans.
	Parse(ctx context.Context, text []byte, origin string) (Tree, error)

	// Language returns the grammar name.
	Language() string

	// Available reports whether the grammar engine is compiled in.
	Available() bool
}
