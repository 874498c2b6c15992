// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version carries the build version and the update check.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Version is set at build time with -ldflags "-X .../pkg/version.Version=v1.2.3".
var Version = "v0.1.0"

// Commit is set at build time.
var Commit = "unknown"

// Canonical returns s as a canonical "vMAJOR.MINOR.PATCH" string, or ""
// when s is not a semantic version. The leading "v" is optional.
func Canonical(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return ""
	}
	c := semver.Canonical(s)
	if pre := semver.Prerelease(c); pre != "" {
		c = strings.TrimSuffix(c, pre)
	}
	return c
}

// ParseSemver returns the numeric parts of s; invalid input yields 0.0.0.
func ParseSemver(s string) (major, minor, patch int) {
	c := Canonical(s)
	if c == "" {
		return 0, 0, 0
	}
	parts := strings.SplitN(strings.TrimPrefix(c, "v"), ".", 3)
	major, _ = strconv.Atoi(parts[0])
	minor, _ = strconv.Atoi(parts[1])
	patch, _ = strconv.Atoi(parts[2])
	return major, minor, patch
}

// Newer reports whether latest is a strictly higher version than current.
// Unparseable versions are never newer.
func Newer(current, latest string) bool {
	l := Canonical(latest)
	if l == "" {
		return false
	}
	c := Canonical(current)
	if c == "" {
		return true
	}
	return semver.Compare(l, c) > 0
}

// Release is the document served by the update endpoint.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Checker queries the update endpoint.
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker creates a checker with a bounded HTTP timeout.
func NewChecker(url string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Checker{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Latest fetches the published release.
func (c *Checker) Latest(ctx context.Context) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Release{}, fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "check42/"+Version)

	resp, err := c.Client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("fetch %s: %w", c.URL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("fetch %s: status %d", c.URL, resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&rel); err != nil {
		return Release{}, fmt.Errorf("decode release: %w", err)
	}
	if Canonical(rel.Version) == "" {
		return Release{}, fmt.Errorf("release version %q is not semantic", rel.Version)
	}
	return rel, nil
}

// Check returns the newer release, if any, relative to current.
func (c *Checker) Check(ctx context.Context, current string) (Release, bool, error) {
	rel, err := c.Latest(ctx)
	if err != nil {
		return Release{}, false, err
	}
	return rel, Newer(current, rel.Version), nil
}
