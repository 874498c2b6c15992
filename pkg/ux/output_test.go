// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func newTestPrinter(level PersonalityLevel) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut, Level: level}, &out, &errOut
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconBullet} {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Render(%q) = %q, missing glyph", icon, got)
		}
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_MachineOutput(t *testing.T) {
	p, out, errOut := newTestPrinter(PersonalityMachine)

	p.Title("check42")
	p.Muted("secondary")
	p.Success("All compliance checks passed.")
	p.Warning("README.md is missing a 'Resources' section")
	p.Fail("Compliance check failed:")
	p.Failure("forbidden call 'printf' in main.c")
	p.Error("unknown project")
	p.Summary(1, 1, 3)

	want := "[OK] All compliance checks passed.\n" +
		"[WARN] README.md is missing a 'Resources' section\n" +
		"[FAIL] Compliance check failed:\n" +
		"  - forbidden call 'printf' in main.c\n" +
		"SUMMARY: violations=1 advisories=1 files=3\n"
	if out.String() != want {
		t.Errorf("stdout =\n%q\nwant\n%q", out.String(), want)
	}
	if errOut.String() != "[ERROR] unknown project\n" {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestPrinter_MinimalOutput(t *testing.T) {
	p, out, _ := newTestPrinter(PersonalityMinimal)
	p.Failure("Missing 42 header in: a.c")

	if !strings.Contains(out.String(), "Missing 42 header in: a.c") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), string(IconError)) {
		t.Errorf("expected error icon, got %q", out.String())
	}
}

func TestPrinter_Box(t *testing.T) {
	p, out, _ := newTestPrinter(PersonalityMinimal)
	p.Box("libft", []string{"a", "b"}, false)
	if out.String() != "libft\n  a\n  b\n" {
		t.Errorf("plain box = %q", out.String())
	}

	p, out, _ = newTestPrinter(PersonalityFull)
	p.Box("libft", []string{"line one"}, true)
	if !strings.Contains(out.String(), "libft") || !strings.Contains(out.String(), "line one") {
		t.Errorf("styled box = %q", out.String())
	}
}

// =============================================================================
// Personality Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := map[string]PersonalityLevel{
		"full":    PersonalityFull,
		"MINIMAL": PersonalityMinimal,
		"m":       PersonalityMinimal,
		"machine": PersonalityMachine,
		"plain":   PersonalityMachine,
		"bogus":   PersonalityFull,
	}
	for in, want := range tests {
		if got := ParsePersonalityLevel(in); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInitPersonality_Env(t *testing.T) {
	prev := GetPersonality()
	defer SetPersonality(prev)

	t.Setenv(EnvPersonality, "minimal")
	InitPersonality()
	if got := GetPersonality(); got != PersonalityMinimal {
		t.Errorf("GetPersonality() = %q, want minimal", got)
	}
}

// =============================================================================
// Spinner Tests
// =============================================================================

func TestSpinner_SilentOutsideFullMode(t *testing.T) {
	p, out, _ := newTestPrinter(PersonalityMachine)
	s := p.NewSpinner("building")
	s.Start()
	s.Update("still building")
	s.Stop()
	s.Stop()
	if out.Len() != 0 {
		t.Errorf("machine spinner wrote %q", out.String())
	}
}

func TestSpinner_StartStop(t *testing.T) {
	p, _, _ := newTestPrinter(PersonalityFull)
	p.Out = &syncBuffer{}
	s := p.NewSpinner("building")
	s.Start()
	s.Start()
	s.Stop()

	if !strings.HasSuffix(p.Out.(*syncBuffer).String(), "\r\033[K") {
		t.Errorf("spinner did not clear its line")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
