// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relink

import (
	"context"
	"path/filepath"
	"sync"
)

// buildDirs serializes Verify calls per build directory across every
// Verifier in the process.
var buildDirs = newDirLocks()

type dirLock struct {
	sem  chan struct{}
	refs int
}

// dirLocks is a keyed mutex whose entries are dropped once unused.
type dirLocks struct {
	mu   sync.Mutex
	held map[string]*dirLock
}

func newDirLocks() *dirLocks {
	return &dirLocks{held: make(map[string]*dirLock)}
}

// acquire blocks until key is free or ctx is done.
func (l *dirLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	dl, ok := l.held[key]
	if !ok {
		dl = &dirLock{sem: make(chan struct{}, 1)}
		l.held[key] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.sem <- struct{}{}:
		return func() {
			<-dl.sem
			l.unref(key, dl)
		}, nil
	case <-ctx.Done():
		l.unref(key, dl)
		return nil, ctx.Err()
	}
}

func (l *dirLocks) unref(key string, dl *dirLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.held, key)
	}
}

// dirKey resolves dir so relative paths and symlinks share one lock.
func dirKey(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
