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

// DefaultMaxSize is the largest normalized text accepted by Parse (8 MiB).
// Preprocessed output of a single student file never comes close.
const DefaultMaxSize = 8 * 1024 * 1024

// CParserOption configures a CParser.
type CParserOption func(*CParser)

// WithMaxSize sets the maximum accepted text size in bytes.
func WithMaxSize(n int) CParserOption {
	return func(p *CParser) {
		if n > 0 {
			p.maxSize = n
		}
	}
}
