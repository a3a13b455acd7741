// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"testing"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

func noopSpec(name string) *Spec {
	return &Spec{
		Name: name,
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *Result {
			return &Result{Status: StatusSuccess}
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(noopSpec("alpha"))

	spec, ok := reg.Get("alpha")
	if !ok || spec == nil {
		t.Fatal("expected to find registered tool")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("expected a miss for an unregistered name")
	}
}

func TestRegistry_IgnoresInvalidSpecs(t *testing.T) {
	reg := NewRegistry()
	reg.Register(nil)
	reg.Register(&Spec{Name: ""})
	reg.Register(&Spec{Name: "norun"})

	if reg.Count() != 0 {
		t.Errorf("registry holds %d specs, want 0", reg.Count())
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(noopSpec("zeta"))
	reg.Register(noopSpec("alpha"))
	reg.Register(noopSpec("mid"))

	names := reg.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestRegistry_MustGetPanics(t *testing.T) {
	reg := NewRegistry()

	defer func() {
		if recover() == nil {
			t.Error("expected MustGet to panic on a missing tool")
		}
	}()
	reg.MustGet("missing")
}
