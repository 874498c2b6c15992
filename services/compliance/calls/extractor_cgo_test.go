// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build cgo

package calls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/check42/services/compliance/ast"
)

func extractSource(t *testing.T, src string) *Set {
	t.Helper()
	tree, err := ast.NewCParser().Parse(context.Background(), []byte(src), "unit.c")
	require.NoError(t, err)
	defer tree.Close()
	return Extract(context.Background(), tree.Root(), "unit.c")
}

func TestExtract_CSource(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "name only in a string literal",
			src:  "void f(void) { char *s = \"printf(x)\"; (void)s; }\n",
			want: []string{},
		},
		{
			name: "name only in comments",
			src:  "/* printf(\"a\") */\n// system(\"rm\")\nvoid f(void) {}\n",
			want: []string{},
		},
		{
			name: "direct call",
			src:  "int printf(const char *, ...);\nvoid f(void) { printf(\"hi\"); }\n",
			want: []string{"printf"},
		},
		{
			name: "function pointer call",
			src:  "typedef void (*t_fn)(void);\nvoid f(t_fn p, t_fn *pp) { (*pp)(); }\n",
			want: []string{},
		},
		{
			name: "member call",
			src:  "struct s { void (*fn)(int); };\nvoid f(struct s *v) { v->fn(1); }\n",
			want: []string{},
		},
		{
			name: "nested and repeated",
			src:  "void f(char *s) { write(1, s, strlen(s)); write(1, \"\\n\", 1); }\n",
			want: []string{"strlen", "write"},
		},
		{
			name: "char literal",
			src:  "void f(void) { char c = 'a'; write(1, &c, 1); }\n",
			want: []string{"write"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			set := extractSource(t, tc.src)
			assert.Equal(t, tc.want, set.Names())
		})
	}
}

func TestExtract_CSourceDefinitions(t *testing.T) {
	set := extractSource(t, `
static size_t	ft_len(const char *s)
{
	size_t	i = 0;
	while (s[i])
		i++;
	return (i);
}

char	*ft_dup(const char *s)
{
	char	*d = malloc(ft_len(s) + 1);
	return (d);
}
`)
	assert.Equal(t, []string{"ft_dup", "ft_len"}, set.DefinedNames())
	assert.Equal(t, []string{"ft_len", "malloc"}, set.Names())
	assert.Equal(t, 12, set.Calls["malloc"].Line)
}
