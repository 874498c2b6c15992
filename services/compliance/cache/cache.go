// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists extracted call sets keyed by the normalized text
// they came from.
//
// Re-running a check on an unchanged submission (watch mode, CI retries, the
// HTTP API) skips parsing entirely. Keys hash the grammar name, the cache
// schema version and the normalized text, so a different preprocessor
// output or grammar never hits a stale entry. Evaluation is never cached: the
// allow-list is applied to cached call sets on every run.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/check42/services/compliance/calls"
)

// schemaVersion is bumped whenever entry encoding or extraction rules change.
const schemaVersion = "v1"

const keyPrefix = "callset/"

// Config configures the cache store.
type Config struct {
	// Dir is the database directory. Required unless InMemory.
	Dir string

	// InMemory keeps everything in RAM (tests, serve mode without a dir).
	InMemory bool

	// TTL expires entries; zero keeps them until garbage collection.
	TTL time.Duration

	// GCInterval runs value-log GC periodically; zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is passed to RunValueLogGC.
	GCDiscardRatio float64

	// Logger receives badger's internal logs; nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns a persistent cache under the user cache directory.
func DefaultConfig() Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return Config{
		Dir:            filepath.Join(dir, "check42", "callsets"),
		TTL:            30 * 24 * time.Hour,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a non-persistent cache.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// entry is the stored form of a call set; paths are not stored because the
// same text may come from any file.
type entry struct {
	Calls     map[string]int `json:"calls"`
	Defined   map[string]int `json:"defined,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a badger-backed call-set cache.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	gc     *gcRunner
	logger *slog.Logger
}

// Open opens (creating if needed) the cache store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("cache dir is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1).WithSyncWrites(false)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open call-set cache: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, ttl: cfg.TTL, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Key derives the cache key for normalized text parsed with grammar.
func Key(grammar string, text []byte) string {
	h := sha256.New()
	h.Write([]byte(schemaVersion))
	h.Write([]byte{0})
	h.Write([]byte(grammar))
	h.Write([]byte{0})
	h.Write(text)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached call set for key, re-labelled with path.
func (s *Store) Lookup(ctx context.Context, key, path string) (*calls.Set, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	var e entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.logger.Warn("call-set cache read failed",
				slog.String("file", path),
				slog.String("error", err.Error()))
		}
		return nil, false
	}

	set := &calls.Set{
		Path:      path,
		Calls:     make(map[string]calls.Record, len(e.Calls)),
		Defined:   make(map[string]int, len(e.Defined)),
		Truncated: e.Truncated,
	}
	for name, line := range e.Calls {
		set.Calls[name] = calls.Record{Name: name, Path: path, Line: line}
	}
	for name, line := range e.Defined {
		set.Defined[name] = line
	}
	return set, true
}

// Save stores set under key.
func (s *Store) Save(ctx context.Context, key string, set *calls.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := entry{
		Calls:     make(map[string]int, len(set.Calls)),
		Defined:   set.Defined,
		Truncated: set.Truncated,
	}
	for name, rec := range set.Calls {
		e.Calls[name] = rec.Line
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode call set: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry([]byte(key), val)
		if s.ttl > 0 {
			be = be.WithTTL(s.ttl)
		}
		return txn.SetEntry(be)
	})
}

// Purge removes every cached call set.
func (s *Store) Purge() error {
	return s.db.DropPrefix([]byte(keyPrefix))
}

// =============================================================================
// GARBAGE COLLECTION
// =============================================================================

type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			err := r.db.RunValueLogGC(r.ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("call-set cache GC error", slog.String("error", err.Error()))
			}
		}
	}
}
