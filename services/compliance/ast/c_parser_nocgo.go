// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build !cgo

package ast

import (
	"context"
	"fmt"
)

// CParser stands in for the tree-sitter backend in builds without cgo.
// Every Parse call fails with ErrGrammarUnavailable.
type CParser struct {
	maxSize int
}

// NewCParser returns the unavailable stand-in.
func NewCParser(opts ...CParserOption) *CParser {
	p := &CParser{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CParser) Language() string { return "c" }

func (p *CParser) Available() bool { return false }

func (p *CParser) Parse(ctx context.Context, text []byte, origin string) (Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s (built without cgo)", ErrGrammarUnavailable, origin)
}

var _ Parser = (*CParser)(nil)
