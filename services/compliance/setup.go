// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compliance

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/check42/services/compliance/ast"
	"github.com/AleutianAI/check42/services/compliance/cache"
	"github.com/AleutianAI/check42/services/compliance/config"
	"github.com/AleutianAI/check42/services/compliance/norm"
	"github.com/AleutianAI/check42/services/compliance/normalize"
	"github.com/AleutianAI/check42/services/compliance/relink"
	"github.com/AleutianAI/check42/services/compliance/rules"
	"github.com/AleutianAI/check42/services/compliance/scan"
)

// SetupOptions adjusts FromConfig for one invocation.
type SetupOptions struct {
	// NoCache disables the call-set cache regardless of configuration.
	NoCache bool

	// InMemoryCache keeps the cache in RAM instead of cfg.Cache.Dir.
	InMemoryCache bool

	Logger *slog.Logger
}

// LoadRegistry returns the operator rules file when configured, otherwise
// the built-in project table.
func LoadRegistry(cfg *config.Config) (*rules.Registry, error) {
	if cfg.RulesFile != "" {
		return rules.LoadFile(cfg.RulesFile)
	}
	return rules.Default()
}

// FromConfig assembles a Checker with every stage configured from cfg.
//
// A cache that cannot be opened (another check42 holds its lock, a
// read-only home) is logged and the run continues uncached. The returned
// close func releases the cache and must be called.
func FromConfig(cfg *config.Config, opts SetupOptions) (*Checker, func() error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := LoadRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	normalizer := normalize.New(normalize.Config{
		Command: cfg.Preprocessor.Command,
		Args:    cfg.Preprocessor.Args,
		Timeout: cfg.Preprocessor.Timeout,
	}, normalize.WithLogger(logger))

	scanOpts := []scan.Option{
		scan.WithAllowDefined(cfg.AllowDefined),
		scan.WithLogger(logger),
	}
	if cfg.Workers > 0 {
		scanOpts = append(scanOpts, scan.WithWorkers(cfg.Workers))
	}

	closeFn := func() error { return nil }
	if cfg.Cache.Enabled && !opts.NoCache {
		store, err := openCache(cfg, opts.InMemoryCache, logger)
		if err != nil {
			logger.Warn("call-set cache disabled", slog.String("error", err.Error()))
		} else {
			scanOpts = append(scanOpts, scan.WithCache(store, cache.Key))
			closeFn = store.Close
		}
	}

	scanner := scan.New(normalizer, ast.NewCParser(), scanOpts...)

	builder := relink.NewMakeBuilder(
		relink.WithCommand(cfg.Build.Command),
		relink.WithBuildTimeout(cfg.Build.Timeout),
	)
	checkerOpts := []Option{
		WithLogger(logger),
		WithVerifier(relink.New(builder,
			relink.WithSettle(cfg.Build.Settle),
			relink.WithLogger(logger),
		)),
	}

	if cfg.Norminette.Enabled {
		checkerOpts = append(checkerOpts, WithStyleRunner(norm.NewRunner(norm.Config{
			Command: cfg.Norminette.Command,
			Docker:  cfg.Norminette.Docker,
			Image:   cfg.Norminette.Image,
			Timeout: cfg.Norminette.Timeout,
		}, norm.WithLogger(logger))))
	}

	return NewChecker(registry, scanner, checkerOpts...), closeFn, nil
}

func openCache(cfg *config.Config, inMemory bool, logger *slog.Logger) (*cache.Store, error) {
	cc := cache.DefaultConfig()
	if cfg.Cache.Dir != "" {
		cc.Dir = cfg.Cache.Dir
	}
	cc.TTL = cfg.Cache.TTL
	cc.InMemory = inMemory
	cc.Logger = logger

	store, err := cache.Open(cc)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}
