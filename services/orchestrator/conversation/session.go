// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ContourAI/ContourChat/pkg/ux"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/ContourAI/ContourChat/services/orchestrator/observability"
	"github.com/google/uuid"
)

// Session bundles everything one conversation owns: its state aggregate,
// its error history and its output gate.
//
// # Thread Safety
//
// The turn mutex serializes turns; at most one turn mutates State at a
// time. Errors and Gate are internally synchronized and may be read
// concurrently (inspection endpoints do).
type Session struct {
	State  *datatypes.SessionState
	Errors *errtrack.Tracker
	Gate   *ux.Gate

	// mu serializes turns within the session.
	mu sync.Mutex
}

// Summarize snapshots the session for inspection and planning.
func (s *Session) Summarize() datatypes.ContextSummary {
	return s.State.Summarize(s.Errors.Len())
}

// =============================================================================
// Session Manager
// =============================================================================

// ManagerConfig tunes session lifecycle.
type ManagerConfig struct {
	// TTL is the idle time after which a session is evicted.
	TTL time.Duration

	// SweepInterval is how often the idle sweeper runs.
	SweepInterval time.Duration

	// ErrorHistory is the per-session error ring size.
	ErrorHistory int

	// GateWriter receives gated emission for sessions without their own
	// writer. Defaults to io.Discard; the HTTP surface returns gated
	// output in response bodies instead.
	GateWriter io.Writer

	// Metrics optionally receives session lifecycle gauge updates.
	Metrics *observability.ChatMetrics
}

func applyManagerDefaults(cfg *ManagerConfig) {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.ErrorHistory <= 0 {
		cfg.ErrorHistory = errtrack.DefaultMaxHistory
	}
	if cfg.GateWriter == nil {
		cfg.GateWriter = io.Discard
	}
}

// Manager owns the live session set.
//
// # Thread Safety
//
// Safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      ManagerConfig

	// onEvict is an optional hook for persistence and metrics.
	onEvict func(*Session)
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	applyManagerDefaults(&cfg)
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// SetEvictHook registers a callback invoked for each evicted session.
// Must be called before RunSweeper.
func (m *Manager) SetEvictHook(fn func(*Session)) {
	m.onEvict = fn
}

// Create opens a new session with a fresh UUID.
func (m *Manager) Create() *Session {
	return m.CreateWithID(uuid.New().String())
}

// CreateWithID opens a session under a caller-chosen id, replacing any
// existing session with the same id.
func (m *Manager) CreateWithID(id string) *Session {
	state := datatypes.NewSessionState(id)
	sess := &Session{
		State:  state,
		Errors: errtrack.NewTracker(m.cfg.ErrorHistory),
	}
	sess.Gate = ux.NewGate(m.cfg.GateWriter, func() bool { return state.VerboseMode })

	m.mu.Lock()
	_, replaced := m.sessions[id]
	m.sessions[id] = sess
	m.mu.Unlock()

	if !replaced && m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionOpened()
	}
	slog.Info("Session created", "session_id", id)
	return sess
}

// Get returns the session for an id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// GetOrCreate returns the existing session or opens one under the given
// id. An empty id always opens a fresh session.
func (m *Manager) GetOrCreate(id string) *Session {
	if id == "" {
		return m.Create()
	}
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess
	}
	return m.CreateWithID(id)
}

// Delete removes a session. Returns false when the id is unknown.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionClosed()
		}
		if m.onEvict != nil {
			m.onEvict(sess)
		}
	}
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunSweeper evicts idle sessions until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	var evicted []*Session

	m.mu.Lock()
	for id, sess := range m.sessions {
		if now.Sub(sess.State.LastActive) > m.cfg.TTL {
			delete(m.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range evicted {
		slog.Info("Session evicted after idle TTL",
			"session_id", sess.State.ID,
			"turns", sess.State.TurnCount)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionClosed()
		}
		if m.onEvict != nil {
			m.onEvict(sess)
		}
	}
}
