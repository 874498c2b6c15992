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

package ast

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect walks the tree and returns every node of the requested kind.
func collect(root Node, kind Kind) []Node {
	var out []Node
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Kind() == kind {
			out = append(out, n)
		}
		for i := n.ChildCount() - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return out
}

func TestCParser_Available(t *testing.T) {
	p := NewCParser()
	assert.True(t, p.Available())
	assert.Equal(t, "c", p.Language())
}

func TestCParser_Parse(t *testing.T) {
	src := `#include <unistd.h>

/* write("comment") */
static void	put(char *s)
{
	write(1, s, 1);
	s->fn(2);
	(*hook)(3);
}

char	*ft_dup(const char *s)
{
	return (strdup("strdup(x)"));
}
`
	tree, err := NewCParser().Parse(context.Background(), []byte(src), "put.c")
	require.NoError(t, err)
	defer tree.Close()

	calls := collect(tree.Root(), KindCall)
	require.Len(t, calls, 4)

	var direct []string
	for _, call := range calls {
		callee := call.Callee()
		require.NotNil(t, callee)
		if name, ok := callee.Name(); ok && callee.Kind() == KindIdentifier {
			direct = append(direct, name)
		}
	}
	assert.ElementsMatch(t, []string{"write", "strdup"}, direct)

	defs := collect(tree.Root(), KindFunctionDefinition)
	require.Len(t, defs, 2)
	var names []string
	for _, d := range defs {
		name, ok := d.Name()
		require.True(t, ok)
		names = append(names, name)
	}
	assert.Equal(t, []string{"put", "ft_dup"}, names)

	assert.NotEmpty(t, collect(tree.Root(), KindComment))
	assert.NotEmpty(t, collect(tree.Root(), KindLiteral))
	assert.NotEmpty(t, collect(tree.Root(), KindFieldAccess))

	assert.Equal(t, 6, calls[0].Line())
}

func TestCParser_ParseFailure(t *testing.T) {
	src := "int main(void)\n{\n\treturn (0\n}\n"

	_, err := NewCParser().Parse(context.Background(), []byte(src), "broken.c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParseFailed))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.c", perr.FilePath)
	assert.Greater(t, perr.Line, 0)
	assert.True(t, strings.HasPrefix(perr.Error(), "broken.c:"))
}

func TestCParser_InvalidContent(t *testing.T) {
	p := NewCParser(WithMaxSize(8))

	_, err := p.Parse(context.Background(), nil, "nil.c")
	assert.True(t, errors.Is(err, ErrInvalidContent))

	_, err = p.Parse(context.Background(), []byte("int main(void) { return 0; }"), "big.c")
	assert.True(t, errors.Is(err, ErrInvalidContent))
}

func TestCParser_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCParser().Parse(ctx, []byte("int x;"), "x.c")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "call", KindCall.String())
	assert.Equal(t, "other", KindOther.String())
	assert.Equal(t, "function_definition", KindFunctionDefinition.String())
}
