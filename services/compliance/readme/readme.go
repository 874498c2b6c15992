// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package readme lints the README.md every submission must ship.
//
// A missing README is a violation. Everything else (template first line,
// required sections, AI disclosure) is advisory.
package readme

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/check42/services/compliance/policy"
)

// FileName is the README every submission must contain.
const FileName = "README.md"

var (
	templateKeywords = []string{"42", "curriculum"}
	requiredSections = []string{"description", "instructions", "resources"}
	aiKeywords       = []string{"ai", "artificial intelligence", "chatgpt", "copilot"}

	sectionPatterns = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(requiredSections))
		for _, s := range requiredSections {
			m[s] = regexp.MustCompile(`(?m)^#{1,6}\s+` + regexp.QuoteMeta(s) + `\b`)
		}
		return m
	}()

	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s`)
)

// Check lints dir/README.md.
func Check(dir string) ([]policy.Violation, []policy.Advisory) {
	path := filepath.Join(dir, FileName)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return []policy.Violation{
			policy.NewViolation(policy.KindMissingReadme, path, "README.md is missing from the project folder"),
		}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, []policy.Advisory{advise(path, "Cannot read README.md: %v", err)}
	}
	return nil, Lint(path, string(content))
}

// Lint returns structure advisories for README content.
func Lint(path, content string) []policy.Advisory {
	var out []policy.Advisory

	first, ok := firstNonEmptyLine(content)
	if !ok {
		out = append(out, advise(path, "README.md appears to be empty"))
	} else if !isItalic(first) || !mentionsAll(strings.ToLower(first), templateKeywords) {
		out = append(out, advise(path,
			"README.md: first non-empty line should be italicized and follow the 42 template, "+
				"e.g. *This project has been created as part of the 42 curriculum by …*"))
	}

	lower := strings.ToLower(content)
	for _, s := range requiredSections {
		if !sectionPatterns[s].MatchString(lower) {
			out = append(out, advise(path, "README.md is missing a '%s' section", capitalize(s)))
		}
	}

	if body, found := section(lower, "resources"); found && !mentionsAny(body, aiKeywords) {
		out = append(out, advise(path,
			"README.md Resources section does not mention AI usage/disclosure "+
				"(expected keywords: AI, artificial intelligence, ChatGPT, Copilot)"))
	}
	return out
}

// section returns the text of the named heading up to the next heading.
func section(lower, name string) (string, bool) {
	loc := sectionPatterns[name].FindStringIndex(lower)
	if loc == nil {
		return "", false
	}
	rest := lower[loc[1]:]
	if next := headingPattern.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return lower[loc[0]:loc[1]] + rest, true
}

func firstNonEmptyLine(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t, true
		}
	}
	return "", false
}

func isItalic(line string) bool {
	if len(line) < 2 {
		return false
	}
	return (strings.HasPrefix(line, "*") && strings.HasSuffix(line, "*")) ||
		(strings.HasPrefix(line, "_") && strings.HasSuffix(line, "_"))
}

func mentionsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func mentionsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func advise(path, format string, args ...any) policy.Advisory {
	return policy.NewAdvisory(policy.AdvisoryReadmeStructure, path, format, args...)
}
