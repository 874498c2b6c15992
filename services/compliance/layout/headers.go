// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/AleutianAI/check42/services/compliance/policy"
)

// HeaderWindow is how many leading bytes are searched for the header marker.
const HeaderWindow = 500

var headerMarker = []byte("By: ")

// HasHeader reports whether content starts with a 42 header.
func HasHeader(content []byte) bool {
	if len(content) > HeaderWindow {
		content = content[:HeaderWindow]
	}
	return bytes.Contains(content, headerMarker)
}

// CheckHeaders reports every file in paths lacking a 42 header.
func CheckHeaders(paths []string) []policy.Violation {
	var out []policy.Violation
	for _, p := range paths {
		head, err := readHead(p)
		if err != nil {
			out = append(out, policy.NewViolation(policy.KindUnreadableFile, p, "Cannot read %s: %v", p, err))
			continue
		}
		if !HasHeader(head) {
			out = append(out, policy.NewViolation(policy.KindMissingHeader, p, "Missing 42 header in: %s", p))
		}
	}
	return out
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, HeaderWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// CheckRequiredPaths reports entries of required missing under dir.
func CheckRequiredPaths(dir string, required []string) []policy.Violation {
	var out []policy.Violation
	for _, p := range required {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			out = append(out, policy.NewViolation(policy.KindMissingPath, p, "Required path missing: %s", p))
		}
	}
	return out
}
