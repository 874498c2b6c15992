// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// linemarker matches both `# 12 "file.c" 1 3` and `#line 12 "file.c"`.
var linemarker = regexp.MustCompile(`^#\s*(?:line\s+)?(\d+)\s+"((?:[^"\\]|\\.)*)"`)

// StripLinemarkers keeps only the lines the preprocessor attributes to origin.
//
// Description:
//
//	Preprocessor output interleaves the unit with every header it includes,
//	separated by linemarkers. Header content is dropped so that inline
//	functions from system headers are not reported against the unit. Blank
//	lines are inserted where the preprocessor skipped ahead, so line N of
//	the result corresponds to line N of the original file.
//
//	Output that carries no linemarkers at all is returned unchanged.
func StripLinemarkers(out []byte, origin string) []byte {
	if !hasLinemarker(out) {
		return out
	}

	want := filepath.Clean(origin)
	var (
		buf     bytes.Buffer
		inUnit  bool
		emitted int
	)

	for _, line := range bytes.Split(bytes.TrimSuffix(out, []byte("\n")), []byte("\n")) {
		if m := linemarker.FindSubmatch(line); m != nil {
			inUnit = filepath.Clean(unescape(string(m[2]))) == want
			if !inUnit {
				continue
			}
			n, err := strconv.Atoi(string(m[1]))
			if err != nil {
				continue
			}
			for emitted < n-1 {
				buf.WriteByte('\n')
				emitted++
			}
			continue
		}
		if !inUnit {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
		emitted++
	}
	return buf.Bytes()
}

func hasLinemarker(out []byte) bool {
	for _, line := range bytes.Split(out, []byte("\n")) {
		if linemarker.Match(line) {
			return true
		}
	}
	return false
}

// unescape undoes the backslash escaping the preprocessor applies to file names.
func unescape(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}
	var b strings.Builder
	escaped := false
	for _, r := range name {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
