// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists session snapshots in an embedded BadgerDB.
//
// Sessions live in RAM while active; the store captures a snapshot when a
// session is evicted or the server shuts down, so a restarted server (or a
// curious operator) can inspect what a past conversation held.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces session snapshots within the database.
const keyPrefix = "session/"

// ErrNotFound is returned when no snapshot exists for a session id.
var ErrNotFound = errors.New("session snapshot not found")

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is the persisted form of a session.
type Snapshot struct {
	State  *datatypes.SessionState `json:"state"`
	Errors []errtrack.Entry        `json:"errors"`

	// SavedAt is when the snapshot was captured.
	SavedAt time.Time `json:"saved_at"`
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds store configuration.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites forces every write to disk before returning.
	SyncWrites bool

	// SnapshotTTL is how long evicted snapshots are retained. Badger
	// expires them lazily. Zero keeps snapshots forever.
	SnapshotTTL time.Duration

	// GCInterval is how often value log garbage collection runs.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a GC rewrite.
	GCDiscardRatio float64

	// Logger receives Badger's internal logging. Nil silences it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable writes, two-week
// snapshot retention, five-minute GC.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		SnapshotTTL:    14 * 24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog to Badger's Logger interface.
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
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store is a snapshot archive backed by BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; Badger serializes conflicting writes.
type Store struct {
	db  *badger.DB
	cfg Config

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the store, creating the database directory if needed.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
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
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	s := &Store{db: db, cfg: cfg}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC()
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

// Save captures a snapshot under the session's id, replacing any previous
// snapshot for that id.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if snap == nil || snap.State == nil || snap.State.ID == "" {
		return errors.New("snapshot must carry a session id")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.State.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+snap.State.ID), payload)
		if s.cfg.SnapshotTTL > 0 {
			e = e.WithTTL(s.cfg.SnapshotTTL)
		}
		return txn.SetEntry(e)
	})
}

// Load retrieves a snapshot by session id. Returns ErrNotFound when no
// snapshot exists or it has expired.
func (s *Store) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + sessionID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Delete removes a snapshot. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + sessionID))
	})
}

// List returns the ids of all stored snapshots.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// =============================================================================
// Garbage Collection
// =============================================================================

func (s *Store) runGC() {
	defer close(s.gcDone)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
			switch {
			case err == nil:
				if s.cfg.Logger != nil {
					s.cfg.Logger.Debug("snapshot store value log GC completed")
				}
			case errors.Is(err, badger.ErrNoRewrite):
				// Nothing to collect.
			default:
				if s.cfg.Logger != nil {
					s.cfg.Logger.Warn("snapshot store GC error", "error", err)
				}
			}
		}
	}
}
