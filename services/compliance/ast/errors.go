// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for parse outcomes.
var (
	// ErrParseFailed indicates the text is not valid C as far as the
	// grammar is concerned. The unit contributes no call sites.
	ErrParseFailed = errors.New("parse failed")

	// ErrGrammarUnavailable indicates the binary was built without the
	// grammar engine (cgo disabled).
	ErrGrammarUnavailable = errors.New("C grammar unavailable")

	// ErrInvalidContent indicates nil or oversized input.
	ErrInvalidContent = errors.New("invalid content")
)

// ParseError locates a parse failure in the normalized text.
//
// Example:
//
//	tree, err := parser.Parse(ctx, text, "main.c")
//	var perr *ParseError
//	if errors.As(err, &perr) {
//	    fmt.Printf("%s:%d: %s\n", perr.FilePath, perr.Line, perr.Message)
//	}
type ParseError struct {
	// FilePath is the origin passed to Parse.
	FilePath string

	// Line is 1-indexed; 0 when unknown.
	Line int

	// Column is 1-indexed; 0 when unknown.
	Column int

	// Message describes the failure.
	Message string

	// Cause is the underlying sentinel.
	Cause error
}

// Error formats the failure as "file:line:col: message".
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
