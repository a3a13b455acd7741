// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(id string) *Snapshot {
	state := datatypes.NewSessionState(id)
	state.TurnCount = 3
	state.DebugMode = true
	return &Snapshot{
		State: state,
		Errors: []errtrack.Entry{
			{ID: 1, ToolName: "boxplot", Kind: errtrack.KindInvalidValue, Message: "bad"},
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, sampleSnapshot("s1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.State.TurnCount != 3 {
		t.Errorf("turn count = %d, want 3", snap.State.TurnCount)
	}
	if !snap.State.DebugMode {
		t.Error("debug flag lost in round trip")
	}
	if len(snap.Errors) != 1 || snap.Errors[0].ToolName != "boxplot" {
		t.Errorf("errors = %+v", snap.Errors)
	}
	if snap.SavedAt.IsZero() {
		t.Error("SavedAt not stamped")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleSnapshot("s1")
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := sampleSnapshot("s1")
	second.State.TurnCount = 9
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.State.TurnCount != 9 {
		t.Errorf("turn count = %d, want the replacement's 9", snap.State.TurnCount)
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, sampleSnapshot(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting a missing id: %v", err)
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("ids = %v, want [a c]", ids)
	}
}

func TestStore_RejectsAnonymousSnapshot(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), &Snapshot{}); err == nil {
		t.Error("snapshot without a session id was accepted")
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, sampleSnapshot("s1")); err == nil {
		t.Error("save with a cancelled context succeeded")
	}
	if _, err := s.Load(ctx, "s1"); err == nil {
		t.Error("load with a cancelled context succeeded")
	}
}
