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
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/ContourAI/ContourChat/services/orchestrator/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManager_GetOrCreate(t *testing.T) {
	mgr := NewManager(ManagerConfig{GateWriter: io.Discard})

	t.Run("empty id opens a fresh session", func(t *testing.T) {
		a := mgr.GetOrCreate("")
		b := mgr.GetOrCreate("")
		if a.State.ID == b.State.ID {
			t.Error("two anonymous sessions share an id")
		}
	})

	t.Run("known id returns the same session", func(t *testing.T) {
		a := mgr.GetOrCreate("alpha")
		a.State.TurnCount = 7
		b := mgr.GetOrCreate("alpha")
		if b.State.TurnCount != 7 {
			t.Error("GetOrCreate returned a different session for a known id")
		}
	})

	t.Run("unknown id creates under that id", func(t *testing.T) {
		s := mgr.GetOrCreate("beta")
		if s.State.ID != "beta" {
			t.Errorf("session id = %q, want beta", s.State.ID)
		}
		if _, ok := mgr.Get("beta"); !ok {
			t.Error("created session not retrievable")
		}
	})
}

func TestManager_DeleteAndCount(t *testing.T) {
	mgr := NewManager(ManagerConfig{GateWriter: io.Discard})
	mgr.CreateWithID("a")
	mgr.CreateWithID("b")

	if mgr.Count() != 2 {
		t.Fatalf("count = %d, want 2", mgr.Count())
	}
	if !mgr.Delete("a") {
		t.Error("Delete(a) reported no session")
	}
	if mgr.Delete("a") {
		t.Error("second Delete(a) reported a session")
	}
	if mgr.Count() != 1 {
		t.Errorf("count = %d after delete, want 1", mgr.Count())
	}
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	mgr := NewManager(ManagerConfig{TTL: time.Minute, GateWriter: io.Discard})

	var evicted []string
	mgr.SetEvictHook(func(s *Session) {
		evicted = append(evicted, s.State.ID)
	})

	stale := mgr.CreateWithID("stale")
	stale.State.LastActive = time.Now().Add(-2 * time.Minute)
	fresh := mgr.CreateWithID("fresh")
	fresh.State.LastActive = time.Now()

	mgr.sweep(time.Now())

	if _, ok := mgr.Get("stale"); ok {
		t.Error("idle session survived the sweep")
	}
	if _, ok := mgr.Get("fresh"); !ok {
		t.Error("active session was evicted")
	}
	if len(evicted) != 1 || evicted[0] != "stale" {
		t.Errorf("evict hook saw %v, want [stale]", evicted)
	}
}

func TestManager_ActiveSessionsGauge(t *testing.T) {
	m := &observability.ChatMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active",
		}),
	}
	mgr := NewManager(ManagerConfig{TTL: time.Minute, GateWriter: io.Discard, Metrics: m})

	first := mgr.Create()
	mgr.CreateWithID("second")
	if v := testutil.ToFloat64(m.ActiveSessions); v != 2 {
		t.Errorf("gauge after two creates = %v, want 2", v)
	}

	// Replacing an existing id is not a new session.
	mgr.CreateWithID("second")
	if v := testutil.ToFloat64(m.ActiveSessions); v != 2 {
		t.Errorf("gauge after replace = %v, want 2", v)
	}

	mgr.Delete(first.State.ID)
	if v := testutil.ToFloat64(m.ActiveSessions); v != 1 {
		t.Errorf("gauge after delete = %v, want 1", v)
	}

	stale, _ := mgr.Get("second")
	stale.State.LastActive = time.Now().Add(-2 * time.Minute)
	mgr.sweep(time.Now())
	if v := testutil.ToFloat64(m.ActiveSessions); v != 0 {
		t.Errorf("gauge after sweep = %v, want 0", v)
	}
}

func TestSession_SummarizeIncludesErrorCount(t *testing.T) {
	mgr := NewManager(ManagerConfig{GateWriter: io.Discard})
	sess := mgr.CreateWithID("s")

	sess.Errors.Record("boxplot", errtrack.KindInvalidValue, "bad", "", "bad", nil)
	sess.Errors.Record("boxplot", errtrack.KindInvalidValue, "bad", "", "bad", nil)

	sum := sess.Summarize()
	if sum.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", sum.ErrorCount)
	}
	if sum.SessionID != "s" {
		t.Errorf("SessionID = %q, want s", sum.SessionID)
	}
}

func TestSession_GateTracksVerboseFlag(t *testing.T) {
	var buf bytes.Buffer
	mgr := NewManager(ManagerConfig{GateWriter: &buf})
	sess := mgr.CreateWithID("s")

	sess.Gate.EmitSecondary("quiet detail", false)
	if buf.Len() != 0 {
		t.Fatal("secondary output emitted while verbose is off")
	}

	sess.State.VerboseMode = true
	sess.Gate.EmitSecondary("loud detail", false)
	if !strings.Contains(buf.String(), "loud detail") {
		t.Error("secondary output suppressed while verbose is on")
	}
}

func TestManager_ErrorHistoryBound(t *testing.T) {
	mgr := NewManager(ManagerConfig{ErrorHistory: 3, GateWriter: io.Discard})
	sess := mgr.CreateWithID("s")

	for i := 0; i < 5; i++ {
		sess.Errors.Record("tool", errtrack.KindUncategorized, "x", "", "x", nil)
	}
	if sess.Errors.Len() != 3 {
		t.Errorf("history length = %d, want the configured bound 3", sess.Errors.Len())
	}
}
