// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signalstore persists the local signals consulted by the status
// checker's fallback heuristic.
//
// Signals are small timestamped keys ("firebase:initialized",
// "gemini:last_response") written by the client whenever a dependency is
// observed working. They live in an embedded BadgerDB so that they survive
// restarts; an optional TTL lets Badger expire them on its own.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package signalstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/tabaudit/services/verification"
)

// keyPrefix namespaces signal keys inside the database.
const keyPrefix = "signal:"

// ErrEmptyKey is returned when a signal key is blank.
var ErrEmptyKey = errors.New("signal key must not be empty")

// Config holds configuration for a Store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil, they are dropped.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection. Zero
	// disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Now is the clock used for recorded timestamps.
	Now func() time.Time
}

// DefaultConfig returns defaults for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Entry is one recorded signal as returned by List.
type Entry struct {
	Key        string    `json:"key"`
	RecordedAt time.Time `json:"recorded_at"`
	// ExpiresAt is zero for signals without a TTL.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Store is a BadgerDB-backed verification.SignalProvider.
//
// # Description
//
// Each signal is stored under "signal:<key>" with the record time encoded
// as big-endian Unix nanoseconds. Expired entries are invisible to Lookup
// and List as soon as their TTL passes.
//
// # Examples
//
//	store, err := signalstore.Open(signalstore.DefaultConfig("~/.tabaudit/signals"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	_ = store.Record(ctx, "firebase:initialized", 0)
//	checker := verification.NewStatusChecker(nil, store, cfg)
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	now    func() time.Time
	logger *slog.Logger
}

var _ verification.SignalProvider = (*Store)(nil)

// Open opens the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent signal store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create signal store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open signal store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{db: db, now: now, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Record stores key with the current time. A positive ttl lets the signal
// expire on its own.
func (s *Store) Record(ctx context.Context, key string, ttl time.Duration) error {
	return s.RecordAt(ctx, key, s.now(), ttl)
}

// RecordAt stores key with an explicit timestamp.
func (s *Store) RecordAt(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(at.UnixNano()))

	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), buf[:])
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("record signal %q: %w", key, err)
	}
	s.logger.Debug("signal recorded", "key", key, "ttl", ttl)
	return nil
}

// Lookup implements verification.SignalProvider. A missing or expired key
// is an absent signal, not an error.
func (s *Store) Lookup(ctx context.Context, key string) (verification.Signal, error) {
	if err := ctx.Err(); err != nil {
		return verification.Signal{}, err
	}
	if key == "" {
		return verification.Signal{}, nil
	}

	var signal verification.Signal
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			at, err := decodeTime(val)
			if err != nil {
				return err
			}
			signal = verification.Signal{Present: true, RecordedAt: at}
			return nil
		})
	})
	if err != nil {
		return verification.Signal{}, fmt.Errorf("lookup signal %q: %w", key, err)
	}
	return signal, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("delete signal %q: %w", key, err)
	}
	return nil
}

// List returns every live signal in key order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			entry := Entry{Key: strings.TrimPrefix(string(item.Key()), keyPrefix)}
			if exp := item.ExpiresAt(); exp > 0 {
				entry.ExpiresAt = time.Unix(int64(exp), 0)
			}
			err := item.Value(func(val []byte) error {
				at, err := decodeTime(val)
				entry.RecordedAt = at
				return err
			})
			if err != nil {
				return fmt.Errorf("decode %q: %w", entry.Key, err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return entries, nil
}

func decodeTime(val []byte) (time.Time, error) {
	if len(val) != 8 {
		return time.Time{}, fmt.Errorf("corrupt signal value: %d bytes", len(val))
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(val))), nil
}

// =============================================================================
// Garbage collection
// =============================================================================

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
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
			// ErrNoRewrite means nothing was worth collecting.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("signal store GC error", slog.String("error", err.Error()))
			}
		}
	}
}
