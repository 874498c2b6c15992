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
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidRegistry indicates the project table failed validation.
	ErrInvalidRegistry = errors.New("invalid project registry")

	// ErrUnknownProject indicates a lookup for a project that is not registered.
	ErrUnknownProject = errors.New("unknown project")
)

// ValidationError lists every problem found in a project table.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRegistry, strings.Join(e.Issues, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRegistry
}

// =============================================================================
// VALIDATOR
// =============================================================================

var (
	registryValidate *validator.Validate
	cIdentifier      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func init() {
	registryValidate = validator.New()

	// Report fields by their YAML key so messages match what operators edit.
	registryValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = registryValidate.RegisterValidation("c_identifier", func(fl validator.FieldLevel) bool {
		return cIdentifier.MatchString(fl.Field().String())
	})
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the validated, immutable table of project policies.
//
// Thread Safety:
//
//	Safe for concurrent use. A Registry is never modified after Load returns.
type Registry struct {
	policies map[string]*Policy
	names    []string
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry built from the embedded projects.yaml.
//
// The embedded table is parsed and validated once per process.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Load(EmbeddedProjects)
	})
	return defaultRegistry, defaultErr
}

// LoadFile reads and validates a project table from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project registry %s: %w", path, err)
	}
	reg, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading project registry %s: %w", path, err)
	}
	return reg, nil
}

// Load parses and validates a project table.
//
// Description:
//
//	Unmarshals YAML, validates every entry (required keys, identifier-shaped
//	allow-list entries, no duplicates) and rejects tables where two names
//	normalize to the same key. All problems are collected before returning.
//
// Outputs:
//
//	*Registry - The immutable registry.
//	error     - *ValidationError (wrapping ErrInvalidRegistry) on semantic
//	            problems, or a wrapped YAML error when the data is malformed.
func Load(data []byte) (*Registry, error) {
	var file projectsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	issues := validateFile(&file)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	reg := &Registry{policies: make(map[string]*Policy, len(file.Projects))}
	for _, entry := range file.Projects {
		p := newPolicy(entry)
		reg.policies[p.key] = p
		reg.names = append(reg.names, p.name)
	}
	sort.Strings(reg.names)
	return reg, nil
}

func validateFile(file *projectsFile) []string {
	var issues []string

	if file.Version != 1 {
		issues = append(issues, fmt.Sprintf("unsupported registry version %d", file.Version))
	}
	if len(file.Projects) == 0 {
		issues = append(issues, "registry declares no projects")
	}

	seen := make(map[string]string, len(file.Projects))
	for i, entry := range file.Projects {
		label := entry.Name
		if strings.TrimSpace(label) == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		if err := registryValidate.Struct(entry); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				issues = append(issues, fmt.Sprintf("'%s': %v", label, err))
				continue
			}
			for _, fe := range verrs {
				issues = append(issues, describeFieldError(label, entry, fe))
			}
		}

		key := Normalize(entry.Name)
		if key == "" {
			continue
		}
		if prev, dup := seen[key]; dup {
			issues = append(issues, fmt.Sprintf(
				"duplicate normalized key: '%s' clashes with '%s' (both normalize to '%s')",
				entry.Name, prev, key))
			continue
		}
		seen[key] = entry.Name
	}
	return issues
}

func describeFieldError(label string, entry projectEntry, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is missing '%s'", label, fe.Field())
	case "unique":
		list := entry.AllowedFunctions
		if fe.Field() == "required_paths" {
			list = entry.RequiredPaths
		}
		return fmt.Sprintf("'%s' has duplicate %s: %v", label, fe.Field(), duplicates(list))
	case "c_identifier":
		return fmt.Sprintf("'%s' %s is not a C identifier: %q", label, fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("'%s' %s failed '%s' check", label, fe.Field(), fe.Tag())
	}
}

func duplicates(list []string) []string {
	counts := make(map[string]int, len(list))
	for _, s := range list {
		counts[s]++
	}
	var out []string
	for s, n := range counts {
		if n > 1 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Normalize maps a project name to its lookup key: surrounding whitespace is
// trimmed, letters are lower-cased and hyphens and spaces become underscores.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "_", " ", "_").Replace(name)
}

// Lookup resolves a user-supplied project name to its policy.
func (r *Registry) Lookup(name string) (*Policy, bool) {
	p, ok := r.policies[Normalize(name)]
	return p, ok
}

// Resolve is Lookup with an error suitable for returning to callers.
func (r *Registry) Resolve(name string) (*Policy, error) {
	p, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProject, name)
	}
	return p, nil
}

// Names returns the canonical project names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	return len(r.policies)
}
