// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package norm

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/check42/services/compliance/policy"
)

const sampleOutput = `src/main.c: Error!
Error: INVALID_HEADER       (line:   1, col:   1):	Missing or invalid 42 header
Error: SPACE_REPLACE_TAB    (line:  17, col:   5):	Found space when expecting tab
src/util.c: OK!
include/util.h: Error!
	Warning: GLOBAL_VAR_DETECTED (line:   3, col:   1):	Global variable present
Notice: GLOBAL_VAR_NAMING    (line:   3, col:   1):	Global variable must start with g_
`

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func notFound(string) (string, error) { return "", exec.ErrNotFound }

func TestParse(t *testing.T) {
	got := Parse([]byte(sampleOutput))
	require.Len(t, got, 3)

	assert.Equal(t, policy.AdvisoryNorminette, got[0].Kind)
	assert.Equal(t, "src/main.c", got[0].File)
	assert.True(t, strings.HasPrefix(got[0].Message, "[NORMINETTE] Error: INVALID_HEADER"))

	assert.Equal(t, "src/main.c", got[1].File)
	assert.Equal(t, "include/util.h", got[2].File)
	assert.True(t, strings.HasPrefix(got[2].Message, "[NORMINETTE] Warning: GLOBAL_VAR_DETECTED"))

	assert.Empty(t, Parse(nil))
}

func TestRunner_EmptyFileList(t *testing.T) {
	r := NewRunner(DefaultConfig())
	got, err := r.Run(context.Background(), ".", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunner_Native(t *testing.T) {
	// Exits non-zero like the real tool does when it finds issues.
	tool := script(t, "cat <<'EOF'\n"+sampleOutput+"EOF\nexit 1")

	dir := t.TempDir()
	r := NewRunner(Config{Command: tool, Docker: ""})
	assert.Equal(t, BackendNative, r.Backend())

	got, err := r.Run(context.Background(), dir, []string{filepath.Join(dir, "main.c")})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRunner_DockerFallback(t *testing.T) {
	docker := script(t, `echo "x.c: Error!"; echo "Error: ARGS $*"`)

	dir := t.TempDir()
	r := NewRunner(Config{Command: "norminette-not-installed-here", Docker: docker})
	assert.Equal(t, BackendDocker, r.Backend())

	got, err := r.Run(context.Background(), dir, []string{filepath.Join(dir, "src", "a.c")})
	require.NoError(t, err)
	require.Len(t, got, 1)

	msg := got[0].Message
	assert.Contains(t, msg, "run --rm")
	assert.Contains(t, msg, DefaultImage)
	assert.Contains(t, msg, ":/code:ro")
	assert.True(t, strings.HasSuffix(msg, "src/a.c"))
}

func TestRunner_NothingInstalled(t *testing.T) {
	r := NewRunner(DefaultConfig(), WithLookPath(notFound))
	assert.Equal(t, BackendNone, r.Backend())

	got, err := r.Run(context.Background(), ".", []string{"a.c"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunner_ToolFailureIsSilent(t *testing.T) {
	tool := script(t, "echo boom >&2; exit 2")
	r := NewRunner(Config{Command: tool})

	got, err := r.Run(context.Background(), t.TempDir(), []string{"a.c"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunner_Canceled(t *testing.T) {
	tool := script(t, "sleep 5")
	r := NewRunner(Config{Command: tool})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, t.TempDir(), []string{"a.c"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_TimeoutKillsDescendants(t *testing.T) {
	tool := script(t, "sleep 30; true")
	r := NewRunner(Config{Command: tool, Timeout: 200 * time.Millisecond})

	start := time.Now()
	got, err := r.Run(context.Background(), t.TempDir(), []string{"a.c"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDefaultImageIsPinned(t *testing.T) {
	assert.Contains(t, DefaultImage, "norminette")
	tag := DefaultImage[strings.LastIndex(DefaultImage, ":")+1:]
	assert.NotEmpty(t, tag)
	assert.NotEqual(t, "latest", tag)
}
