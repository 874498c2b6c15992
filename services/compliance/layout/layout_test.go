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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/check42/services/compliance/policy"
)

const header = "/* ************************************************************************** */\n" +
	"/*   By: student <student@student.42.fr>                                      */\n" +
	"/* ************************************************************************** */\n"

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	main := write(t, root, "main.c", "")
	util := write(t, root, "src/util.c", "")
	hdr := write(t, root, "includes/util.h", "")
	write(t, root, ".git/hooks/pre.c", "")
	write(t, root, "Makefile", "")
	write(t, root, "notes.txt", "")

	src, err := Discover(context.Background(), root)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{main, util, hdr}, src.All)
	assert.ElementsMatch(t, []string{main, util}, src.C)
	assert.IsNonDecreasing(t, src.All)
}

func TestDiscover_HiddenRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".submission")
	f := write(t, root, "a.c", "")

	src, err := Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{f}, src.C)
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	file := write(t, t.TempDir(), "a.c", "")
	_, err = Discover(context.Background(), file)
	assert.Error(t, err)
}

func TestHasHeader(t *testing.T) {
	assert.True(t, HasHeader([]byte(header+"int main(void) {}\n")))
	assert.False(t, HasHeader([]byte("int main(void) {}\n")))

	late := strings.Repeat("\n", HeaderWindow) + header
	assert.False(t, HasHeader([]byte(late)), "marker beyond the window does not count")
}

func TestCheckHeaders(t *testing.T) {
	root := t.TempDir()
	good := write(t, root, "good.c", header)
	bad := write(t, root, "bad.h", "#ifndef BAD_H\n")
	missing := filepath.Join(root, "missing.c")

	got := CheckHeaders([]string{good, bad, missing})
	require.Len(t, got, 2)

	assert.Equal(t, policy.KindMissingHeader, got[0].Kind)
	assert.Equal(t, "Missing 42 header in: "+bad, got[0].Message)

	assert.Equal(t, policy.KindUnreadableFile, got[1].Kind)
	assert.True(t, strings.HasPrefix(got[1].Message, "Cannot read "+missing+": "))
}

func TestCheckRequiredPaths(t *testing.T) {
	root := t.TempDir()
	write(t, root, "Makefile", "all:\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bonus"), 0o755))

	got := CheckRequiredPaths(root, []string{"Makefile", "bonus", "libft/"})
	require.Len(t, got, 1)
	assert.Equal(t, policy.KindMissingPath, got[0].Kind)
	assert.Equal(t, "Required path missing: libft/", got[0].Message)

	assert.Empty(t, CheckRequiredPaths(root, nil))
}
