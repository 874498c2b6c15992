// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout holds the file-level checks of a submission: source
// discovery, 42 headers and required paths.
package layout

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sources lists the files of a submission the other checks operate on.
type Sources struct {
	// All holds every .c and .h file, sorted.
	All []string

	// C holds the .c subset of All, sorted.
	C []string
}

// Discover walks root recursively and collects C sources.
//
// Hidden directories (.git, .vscode, ...) are skipped, as are symlinks.
// Unreadable subtrees are logged and skipped rather than failing the run.
func Discover(ctx context.Context, root string) (Sources, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Sources{}, fmt.Errorf("submission folder: %w", err)
	}
	if !info.IsDir() {
		return Sources{}, fmt.Errorf("submission folder %s is not a directory", root)
	}

	var src Sources
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Debug("skipping inaccessible path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		switch filepath.Ext(path) {
		case ".c":
			src.All = append(src.All, path)
			src.C = append(src.C, path)
		case ".h":
			src.All = append(src.All, path)
		}
		return nil
	})
	if err != nil {
		return Sources{}, err
	}

	sort.Strings(src.All)
	sort.Strings(src.C)
	return src, nil
}
