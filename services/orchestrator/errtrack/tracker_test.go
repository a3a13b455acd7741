// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package errtrack

import (
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// Bounded History Tests
// =============================================================================

func TestTracker_BoundedEviction(t *testing.T) {
	t.Run("history never exceeds the bound", func(t *testing.T) {
		tr := NewTracker(20)
		for i := 0; i < 25; i++ {
			tr.Record("functional_boxplot", KindUncategorized,
				fmt.Sprintf("failure %d", i+1), "trace", "something went wrong", nil)
		}
		if got := tr.Len(); got != 20 {
			t.Fatalf("Len() = %d, want 20", got)
		}
	})

	t.Run("surviving ids are the most recent N in ascending order", func(t *testing.T) {
		tr := NewTracker(20)
		for i := 0; i < 25; i++ {
			tr.Record("band_depth", KindUncategorized, "boom", "trace", "boom", nil)
		}
		entries := tr.List()
		if len(entries) != 20 {
			t.Fatalf("List() returned %d entries, want 20", len(entries))
		}
		for i, e := range entries {
			want := 6 + i // ids 1-5 evicted, 6-25 survive
			if e.ID != want {
				t.Errorf("entries[%d].ID = %d, want %d", i, e.ID, want)
			}
		}
	})

	t.Run("ids keep increasing across evictions", func(t *testing.T) {
		tr := NewTracker(3)
		var last int
		for i := 0; i < 10; i++ {
			e := tr.Record("tool", KindUncategorized, "x", "", "x", nil)
			if e.ID <= last {
				t.Fatalf("id %d not strictly greater than previous %d", e.ID, last)
			}
			last = e.ID
		}
		if last != 10 {
			t.Errorf("last assigned id = %d, want 10", last)
		}
	})

	t.Run("evicted ids are not resurrected by Get", func(t *testing.T) {
		tr := NewTracker(2)
		tr.Record("a", KindUncategorized, "1", "", "1", nil)
		tr.Record("b", KindUncategorized, "2", "", "2", nil)
		tr.Record("c", KindUncategorized, "3", "", "3", nil)

		if _, ok := tr.Get(1); ok {
			t.Error("Get(1) found an evicted entry")
		}
		if e, ok := tr.Get(3); !ok || e.ToolName != "c" {
			t.Errorf("Get(3) = (%+v, %v), want entry for tool c", e, ok)
		}
	})
}

// =============================================================================
// Lookup and Mutation Tests
// =============================================================================

func TestTracker_Lookup(t *testing.T) {
	t.Run("Last returns the most recent entry", func(t *testing.T) {
		tr := NewTracker(0) // default bound
		if _, ok := tr.Last(); ok {
			t.Error("Last() on empty tracker reported an entry")
		}
		tr.Record("a", KindUncategorized, "first", "", "first", nil)
		tr.Record("b", KindUncategorized, "second", "", "second", nil)
		e, ok := tr.Last()
		if !ok || e.Message != "second" {
			t.Errorf("Last() = (%+v, %v), want the second entry", e, ok)
		}
	})

	t.Run("context mapping is copied, not aliased", func(t *testing.T) {
		tr := NewTracker(5)
		ctx := map[string]any{"dataset": "wheat"}
		e := tr.Record("viz", KindMissingResource, "no dataset", "", "no dataset",
			&RecordOptions{Context: ctx})
		ctx["dataset"] = "mutated"
		stored, _ := tr.Get(e.ID)
		if stored.Context["dataset"] != "wheat" {
			t.Errorf("context was aliased: got %v", stored.Context["dataset"])
		}
	})
}

func TestTracker_MarkAutoFixed(t *testing.T) {
	t.Run("flips the flag one way", func(t *testing.T) {
		tr := NewTracker(5)
		e := tr.Record("band_depth", KindShapeMismatch, "shape mismatch", "", "mismatch", nil)
		if e.AutoFixed {
			t.Fatal("new entry already auto-fixed")
		}
		if !tr.MarkAutoFixed(e.ID) {
			t.Fatal("MarkAutoFixed reported no update for a live id")
		}
		got, _ := tr.Get(e.ID)
		if !got.AutoFixed {
			t.Error("AutoFixed flag not set after MarkAutoFixed")
		}
	})

	t.Run("missing id is a silent no-op", func(t *testing.T) {
		tr := NewTracker(5)
		tr.Record("tool", KindUncategorized, "x", "", "x", nil)

		before := tr.List()
		if tr.MarkAutoFixed(999) {
			t.Error("MarkAutoFixed(999) claimed an update")
		}
		after := tr.List()
		if len(before) != len(after) {
			t.Error("history changed after marking a missing id")
		}
		for i := range before {
			if before[i].AutoFixed != after[i].AutoFixed {
				t.Error("an unrelated entry's flag changed")
			}
		}
	})

	t.Run("returned copies do not leak mutability", func(t *testing.T) {
		tr := NewTracker(5)
		e := tr.Record("tool", KindUncategorized, "x", "", "x", nil)
		e.Message = "tampered"
		stored, _ := tr.Get(e.ID)
		if stored.Message != "x" {
			t.Error("mutating a returned copy changed the stored entry")
		}
	})
}

// =============================================================================
// Classification Tests
// =============================================================================

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"unknown colormap", errors.New(`unknown colormap "plasmaa"`), KindInvalidValue},
		{"shape mismatch", errors.New("shape mismatch: member 3 has 98 samples, expected 100"), KindShapeMismatch},
		{"missing dataset", errors.New(`dataset "d-404" not found`), KindMissingResource},
		{"sequencing", errors.New("report generation requires statistics"), KindMissingDependency},
		{"anything else", errors.New("ferror 42"), KindUncategorized},
		{"nil error", nil, KindUncategorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err, ""); got != tc.want {
				t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}

	t.Run("trace contributes to classification", func(t *testing.T) {
		err := errors.New("tool failed")
		got := Classify(err, "ValueError: dimension mismatch between grids")
		if got != KindShapeMismatch {
			t.Errorf("Classify with trace = %s, want %s", got, KindShapeMismatch)
		}
	})
}

func TestHint(t *testing.T) {
	t.Run("names the offending quoted value", func(t *testing.T) {
		err := errors.New(`unknown colormap "plasmaa"`)
		hint := Hint(KindInvalidValue, err)
		if hint == "" {
			t.Fatal("expected a hint for invalid value")
		}
		if want := `"plasmaa"`; !containsSubstring(hint, want) {
			t.Errorf("hint %q does not name the offending value %s", hint, want)
		}
	})

	t.Run("uncategorized has no hint", func(t *testing.T) {
		if hint := Hint(KindUncategorized, errors.New("boom")); hint != "" {
			t.Errorf("uncategorized hint = %q, want empty", hint)
		}
	})

	t.Run("every known category has a template", func(t *testing.T) {
		for _, k := range []Kind{KindInvalidValue, KindShapeMismatch, KindMissingResource, KindMissingDependency} {
			if Hint(k, nil) == "" {
				t.Errorf("kind %s has no hint template", k)
			}
		}
	})
}

func containsSubstring(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
