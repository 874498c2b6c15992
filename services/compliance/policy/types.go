// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"fmt"
)

// =============================================================================
// VIOLATIONS
// =============================================================================

// ViolationKind categorizes a hard failure.
type ViolationKind string

const (
	// KindForbiddenCall is a direct call to a name outside the allow-list.
	KindForbiddenCall ViolationKind = "forbidden-call"

	// KindMissingHeader is a .c/.h file without a 42 header.
	KindMissingHeader ViolationKind = "missing-header"

	// KindRelinkDetected is an artifact rebuilt by a no-op build.
	KindRelinkDetected ViolationKind = "relink-detected"

	// KindBuildFailed covers every build problem the relink check hits.
	KindBuildFailed ViolationKind = "build-failed"

	// KindMissingReadme is a submission without README.md.
	KindMissingReadme ViolationKind = "missing-readme"

	// KindMissingPath is a required path absent from the submission.
	KindMissingPath ViolationKind = "missing-path"

	// KindUnreadableFile is a source file that could not be read.
	KindUnreadableFile ViolationKind = "unreadable-file"
)

// Violation is a hard finding. Any violation makes the verdict non-compliant.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
	File    string        `json:"file,omitempty"`
	Line    int           `json:"line,omitempty"`
}

// String returns the message.
func (v Violation) String() string {
	return v.Message
}

// NewViolation creates a violation with a formatted message.
func NewViolation(kind ViolationKind, file, format string, args ...any) Violation {
	return Violation{Kind: kind, File: file, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ADVISORIES
// =============================================================================

// AdvisoryKind categorizes a non-blocking notice.
type AdvisoryKind string

const (
	// AdvisoryParseFailure marks a unit the grammar rejected; it was skipped.
	AdvisoryParseFailure AdvisoryKind = "parse-failure"

	// AdvisoryGrammarUnavailable marks a run whose forbidden-call check was skipped.
	AdvisoryGrammarUnavailable AdvisoryKind = "grammar-unavailable"

	// AdvisoryPreprocessorFallback marks units analyzed without macro expansion.
	AdvisoryPreprocessorFallback AdvisoryKind = "preprocessor-fallback"

	// AdvisoryBuildToolUnavailable marks a skipped relink check.
	AdvisoryBuildToolUnavailable AdvisoryKind = "build-tool-unavailable"

	// AdvisoryReadmeStructure is a README layout suggestion.
	AdvisoryReadmeStructure AdvisoryKind = "readme-structure"

	// AdvisoryNorminette is a style finding reported by norminette.
	AdvisoryNorminette AdvisoryKind = "norminette"

	// AdvisoryTruncated marks a unit whose tree was too deep to walk fully.
	AdvisoryTruncated AdvisoryKind = "analysis-truncated"

	// AdvisoryUpdate reports a newer release.
	AdvisoryUpdate AdvisoryKind = "update-available"
)

// Advisory is an informational notice. Advisories never change the verdict.
type Advisory struct {
	Kind    AdvisoryKind `json:"kind"`
	Message string       `json:"message"`
	File    string       `json:"file,omitempty"`
}

// String returns the message.
func (a Advisory) String() string {
	return a.Message
}

// NewAdvisory creates an advisory with a formatted message.
func NewAdvisory(kind AdvisoryKind, file, format string, args ...any) Advisory {
	return Advisory{Kind: kind, File: file, Message: fmt.Sprintf(format, args...)}
}
