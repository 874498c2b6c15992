// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"sort"
	"strings"
)

// projectsFile mirrors the on-disk schema of projects.yaml.
type projectsFile struct {
	Version  int            `yaml:"version"`
	Projects []projectEntry `yaml:"projects"`
}

// projectEntry is one project row as written in YAML.
//
// AllowedFunctions and RequiredPaths must be present even when empty: a nil
// slice means the key was missing, which fails the "required" check, while
// `[]` decodes to a non-nil empty slice.
type projectEntry struct {
	Name             string   `yaml:"name" validate:"required"`
	AllowedFunctions []string `yaml:"allowed_functions" validate:"required,unique,dive,required,c_identifier"`
	Artifact         string   `yaml:"artifact"`
	RequiredPaths    []string `yaml:"required_paths" validate:"required,unique,dive,required"`
}

// Policy is the compliance rule set for a single project.
//
// Description:
//
//	A Policy is built once by Load and never modified afterwards. All slice
//	accessors return copies so callers cannot mutate registry state.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Policy struct {
	name          string
	key           string
	allowed       []string
	allowedSet    map[string]struct{}
	artifact      string
	requiredPaths []string
}

func newPolicy(e projectEntry) *Policy {
	allowed := append([]string(nil), e.AllowedFunctions...)
	sort.Strings(allowed)

	set := make(map[string]struct{}, len(allowed))
	for _, fn := range allowed {
		set[fn] = struct{}{}
	}

	return &Policy{
		name:          e.Name,
		key:           Normalize(e.Name),
		allowed:       allowed,
		allowedSet:    set,
		artifact:      strings.TrimSpace(e.Artifact),
		requiredPaths: append([]string(nil), e.RequiredPaths...),
	}
}

// Name returns the canonical project name as declared in the registry.
func (p *Policy) Name() string { return p.name }

// Key returns the normalized lookup key.
func (p *Policy) Key() string { return p.key }

// Allowed returns the allow-list, sorted.
func (p *Policy) Allowed() []string { return append([]string(nil), p.allowed...) }

// Allows reports whether fn is on the project's allow-list.
func (p *Policy) Allows(fn string) bool {
	_, ok := p.allowedSet[fn]
	return ok
}

// Artifact returns the build artifact name, or "" when the project has no
// single relinkable target.
func (p *Policy) Artifact() string { return p.artifact }

// RequiredPaths returns the paths that must exist relative to the submission root.
func (p *Policy) RequiredPaths() []string { return append([]string(nil), p.requiredPaths...) }
