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
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func writeUnit(t *testing.T, body string) (string, []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.c")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, []byte(body)
}

func TestNormalize_Unavailable(t *testing.T) {
	p := New(Config{Command: "gcc"}, WithLookPath(func(string) (string, error) {
		return "", exec.ErrNotFound
	}))
	assert.False(t, p.Available())

	path, raw := writeUnit(t, "int main(void) { return puts(\"x\"); }\n")
	res, err := p.Normalize(context.Background(), path, raw)
	require.NoError(t, err)

	assert.Equal(t, ModeRaw, res.Mode)
	assert.Equal(t, ReasonUnavailable, res.Reason)
	assert.True(t, res.FellBack())
	assert.Equal(t, raw, res.Text)
}

func TestNormalize_ToolFailure(t *testing.T) {
	requireShell(t)

	p := New(Config{Command: "sh", Args: []string{"-c", "echo 'fatal error: mlx.h: No such file' >&2; exit 1"}})
	path, raw := writeUnit(t, "#include \"mlx.h\"\nint f(void) { return 0; }\n")

	res, err := p.Normalize(context.Background(), path, raw)
	require.NoError(t, err)

	assert.Equal(t, ModeRaw, res.Mode)
	assert.Equal(t, ReasonFailed, res.Reason)
	assert.Equal(t, "fatal error: mlx.h: No such file", res.Detail)
	assert.Equal(t, raw, res.Text)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, onDisk)
}

func TestNormalize_Timeout(t *testing.T) {
	requireShell(t)

	p := New(Config{
		Command: "sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	path, raw := writeUnit(t, "int x;\n")

	start := time.Now()
	res, err := p.Normalize(context.Background(), path, raw)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, ModeRaw, res.Mode)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Equal(t, raw, res.Text)
}

func TestNormalize_TimeoutWithLingeringChild(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	// sleep runs as a grandchild holding stdout, the way cc1 does under gcc.
	p := New(Config{
		Command: "sh",
		Args:    []string{"-c", "sleep 30; true"},
		Timeout: 200 * time.Millisecond,
	})
	path, raw := writeUnit(t, "int x;\n")

	start := time.Now()
	res, err := p.Normalize(context.Background(), path, raw)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Equal(t, raw, res.Text)
}

func TestNormalize_Success(t *testing.T) {
	requireShell(t)

	// The unit path arrives as $0; emit a header section followed by the unit.
	script := `printf '# 1 "%s"\n# 1 "/usr/include/stdio.h" 1 3 4\nint puts(const char *);\n# 2 "%s" 2\nint main(void) { return puts("hi"); }\n' "$0" "$0"`
	p := New(Config{Command: "sh", Args: []string{"-c", script}})
	path, raw := writeUnit(t, "#include <stdio.h>\nint main(void) { return puts(\"hi\"); }\n")

	res, err := p.Normalize(context.Background(), path, raw)
	require.NoError(t, err)

	assert.Equal(t, ModePreprocessed, res.Mode)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.False(t, res.FellBack())
	assert.Equal(t, "\nint main(void) { return puts(\"hi\"); }\n", string(res.Text))
}

func TestNormalize_CancelledContext(t *testing.T) {
	p := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Normalize(ctx, "unit.c", []byte("int x;"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNormalize_RealPreprocessor(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available")
	}

	src := "#include <stdio.h>\n#define SAY(x) printf(\"%s\\n\", x)\nint main(void)\n{\n\tSAY(\"hi\");\n\treturn (0);\n}\n"
	path, raw := writeUnit(t, src)

	res, err := New(DefaultConfig()).Normalize(context.Background(), path, raw)
	require.NoError(t, err)
	require.Equal(t, ModePreprocessed, res.Mode, "detail: %s", res.Detail)

	text := string(res.Text)
	assert.Contains(t, text, "printf(")
	assert.NotContains(t, text, "SAY(")
	// stdio.h declarations must not leak into the unit.
	assert.NotContains(t, text, "fprintf")

	lines := strings.Split(text, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[4], "printf(")
}

func TestReasonAndModeStrings(t *testing.T) {
	assert.Equal(t, "preprocessed", ModePreprocessed.String())
	assert.Equal(t, "raw", ModeRaw.String())
	assert.Equal(t, "preprocessor timed out", ReasonTimeout.String())
	assert.Equal(t, "preprocessor unavailable", ReasonUnavailable.String())
}
