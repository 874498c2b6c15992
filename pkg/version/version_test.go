// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSemver(t *testing.T) {
	tests := []struct {
		in                  string
		major, minor, patch int
	}{
		{"1.2.3", 1, 2, 3},
		{"v2.0.0", 2, 0, 0},
		{"v1.4", 1, 4, 0},
		{"v3.1.0-rc.1", 3, 1, 0},
		{"bad", 0, 0, 0},
		{"", 0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			ma, mi, pa := ParseSemver(tc.in)
			assert.Equal(t, []int{tc.major, tc.minor, tc.patch}, []int{ma, mi, pa})
		})
	}
}

func TestNewer(t *testing.T) {
	assert.True(t, Newer("v1.0.0", "v1.0.1"))
	assert.True(t, Newer("1.9.0", "2.0.0"))
	assert.False(t, Newer("v1.0.0", "v1.0.0"))
	assert.False(t, Newer("v2.0.0", "v1.9.9"))
	assert.False(t, Newer("v1.0.0", "garbage"))
	assert.True(t, Newer("dev", "v0.0.1"))
}

func TestChecker_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "check42/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"v9.9.9","url":"https://example.invalid/check42"}`))
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, time.Second)
	rel, newer, err := c.Check(context.Background(), "v1.0.0")
	require.NoError(t, err)
	assert.True(t, newer)
	assert.Equal(t, "v9.9.9", rel.Version)

	_, newer, err = c.Check(context.Background(), "v10.0.0")
	require.NoError(t, err)
	assert.False(t, newer)
}

func TestChecker_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"not json", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) }},
		{"bad version", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"version":"latest"}`)) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, _, err := NewChecker(srv.URL, time.Second).Check(context.Background(), "v1.0.0")
			assert.Error(t, err)
		})
	}
}
