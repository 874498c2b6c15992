// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy holds the finding types shared by every check and the
// allow-list evaluation for call sets.
package policy

import (
	"sort"
	"strings"
)

// builtinPrefix marks compiler intrinsics that stand in for library calls
// after macro expansion (va_start becomes __builtin_va_start).
const builtinPrefix = "__builtin_"

// libcHelpers are glibc accessors that header macros expand to. A student
// writing errno or isalpha never names them. An empty list means the
// expansion is not a library call at all.
var libcHelpers = map[string][]string{
	"__errno_location": nil,
	"__ctype_b_loc": {
		"isalnum", "isalpha", "isblank", "iscntrl", "isdigit", "isgraph",
		"islower", "isprint", "ispunct", "isspace", "isupper", "isxdigit",
	},
	"__ctype_tolower_loc": {"tolower"},
	"__ctype_toupper_loc": {"toupper"},
}

// AllowList answers membership queries for a project's permitted calls.
type AllowList interface {
	Allows(name string) bool
}

// AllowSet is a map-backed AllowList.
type AllowSet map[string]struct{}

// NewAllowSet builds an AllowSet from names.
func NewAllowSet(names ...string) AllowSet {
	s := make(AllowSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Allows implements AllowList.
func (s AllowSet) Allows(name string) bool {
	_, ok := s[name]
	return ok
}

// union allows a name when any member allows it.
type union []AllowList

func (u union) Allows(name string) bool {
	for _, l := range u {
		if l != nil && l.Allows(name) {
			return true
		}
	}
	return false
}

// Union combines allow-lists.
func Union(lists ...AllowList) AllowList {
	return union(lists)
}

// CanonicalName maps a compiler intrinsic to the library name it implements.
func CanonicalName(name string) string {
	if base, ok := strings.CutPrefix(name, builtinPrefix); ok && base != "" {
		return base
	}
	return name
}

// LibraryNames returns the names a call may be allowed under: the
// canonical name, or for a glibc macro helper the public functions that
// expand to it. ok is false for helpers that never need allowing.
func LibraryNames(name string) (names []string, ok bool) {
	if helpers, known := libcHelpers[name]; known {
		return helpers, len(helpers) > 0
	}
	return []string{CanonicalName(name)}, true
}

func allows(allowed AllowList, name string) bool {
	names, ok := LibraryNames(name)
	if !ok {
		return true
	}
	if allowed == nil {
		return false
	}
	for _, n := range names {
		if allowed.Allows(n) {
			return true
		}
	}
	return false
}

// Forbidden returns the called names not covered by allowed, sorted and
// without duplicates.
func Forbidden(called []string, allowed AllowList) []string {
	seen := make(map[string]struct{}, len(called))
	var out []string
	for _, name := range called {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if allows(allowed, name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Evaluate produces one forbidden-call violation per called name outside the
// allow-list, in lexicographic order of name.
//
// Description:
//
//	Pure and file-local: the result depends only on path, the called names
//	and the allow-list. An empty call set yields no violations.
func Evaluate(path string, called []string, allowed AllowList) []Violation {
	forbidden := Forbidden(called, allowed)
	if len(forbidden) == 0 {
		return nil
	}
	out := make([]Violation, 0, len(forbidden))
	for _, name := range forbidden {
		out = append(out, NewViolation(KindForbiddenCall, path, "forbidden call '%s' in %s", name, path))
	}
	return out
}
