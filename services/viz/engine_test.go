// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package viz

import (
	"strings"
	"testing"
)

func TestGenerate_Curves(t *testing.T) {
	e := NewEngineWithSeed(42)

	ref, err := e.Generate(GenerateSpec{Label: "demo", Kind: "curves", Members: 10, Length: 30})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if ref.ID == "" {
		t.Error("expected a non-empty dataset id")
	}
	if ref.Members != 10 || ref.Length != 30 {
		t.Errorf("unexpected shape: %d members x %d", ref.Members, ref.Length)
	}

	ens, err := e.Dataset(ref.ID)
	if err != nil {
		t.Fatalf("Dataset failed: %v", err)
	}
	if len(ens.Members) != 10 || len(ens.Members[0]) != 30 {
		t.Errorf("stored shape %dx%d, want 10x30", len(ens.Members), len(ens.Members[0]))
	}
}

func TestGenerate_FieldsAreSquare(t *testing.T) {
	e := NewEngineWithSeed(42)

	ref, err := e.Generate(GenerateSpec{Kind: "fields", Members: 5, Length: 8})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	ens, err := e.Dataset(ref.ID)
	if err != nil {
		t.Fatalf("Dataset failed: %v", err)
	}
	if len(ens.Members[0]) != 64 {
		t.Errorf("field member length = %d, want 64", len(ens.Members[0]))
	}
}

func TestGenerate_InvalidKind(t *testing.T) {
	e := NewEngineWithSeed(1)

	_, err := e.Generate(GenerateSpec{Kind: "tensors"})
	if err == nil {
		t.Fatal("expected an error for unknown ensemble kind")
	}
	if !strings.Contains(err.Error(), "invalid value") {
		t.Errorf("error %q should mention invalid value", err)
	}
}

func TestLoad_ShapeMismatch(t *testing.T) {
	e := NewEngineWithSeed(1)

	_, err := e.Load("ragged", "curves", [][]float64{{1, 2, 3}, {1, 2}})
	if err == nil {
		t.Fatal("expected an error for ragged members")
	}
	if !strings.Contains(err.Error(), "shape mismatch") {
		t.Errorf("error %q should mention shape mismatch", err)
	}
}

func TestDataset_NotFound(t *testing.T) {
	e := NewEngineWithSeed(1)

	_, err := e.Dataset("no-such-id")
	if err == nil {
		t.Fatal("expected an error for unknown dataset")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error %q should mention not found", err)
	}
}

func TestBoxplot_MedianAndBands(t *testing.T) {
	e := NewEngineWithSeed(1)

	// Three flat curves at 1, 2 and 3: the pointwise median is 2.
	ref, err := e.Load("flat", "curves", [][]float64{
		{1, 1, 1, 1},
		{2, 2, 2, 2},
		{3, 3, 3, 3},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	fig, err := e.Boxplot(ref.ID, map[string]any{"colormap": "viridis"})
	if err != nil {
		t.Fatalf("Boxplot failed: %v", err)
	}
	if fig.Kind != "functional_boxplot" {
		t.Errorf("figure kind = %q", fig.Kind)
	}
	for j, v := range fig.Median {
		if v != 2 {
			t.Errorf("median[%d] = %v, want 2", j, v)
		}
	}
	// Default 50% band: one lower and one upper series.
	if len(fig.Bands) != 2 {
		t.Errorf("got %d band series, want 2", len(fig.Bands))
	}
}

func TestBoxplot_UnknownColormap(t *testing.T) {
	e := NewEngineWithSeed(1)
	ref, _ := e.Load("flat", "curves", [][]float64{{1, 2}, {2, 3}})

	_, err := e.Boxplot(ref.ID, map[string]any{"colormap": "sunset"})
	if err == nil {
		t.Fatal("expected an error for unknown colormap")
	}
	if !strings.Contains(err.Error(), `unknown colormap "sunset"`) {
		t.Errorf("error %q should name the offending colormap", err)
	}
}

func TestBoxplot_CustomPercentiles(t *testing.T) {
	e := NewEngineWithSeed(1)
	ref, _ := e.Load("flat", "curves", [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}})

	fig, err := e.Boxplot(ref.ID, map[string]any{"percentiles": []float64{25, 50, 75}})
	if err != nil {
		t.Fatalf("Boxplot failed: %v", err)
	}
	if len(fig.Bands) != 6 {
		t.Errorf("got %d band series for 3 percentiles, want 6", len(fig.Bands))
	}
}

func TestContourBoxplot_RequiresFields(t *testing.T) {
	e := NewEngineWithSeed(1)
	ref, _ := e.Load("flat", "curves", [][]float64{{1, 2}, {2, 3}})

	_, err := e.ContourBoxplot(ref.ID, nil)
	if err == nil {
		t.Fatal("expected an error for a curves ensemble")
	}
	if !strings.Contains(err.Error(), "invalid value") {
		t.Errorf("error %q should mention invalid value", err)
	}
}

func TestContourBoxplot_InclusionFractions(t *testing.T) {
	e := NewEngineWithSeed(1)

	// 2x2 fields: cell 0 above the isovalue in both members, cell 3 in one.
	ref, err := e.Load("grid", "fields", [][]float64{
		{1, 0, 0, 1},
		{1, 0, 0, 0},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	fig, err := e.ContourBoxplot(ref.ID, map[string]any{"isovalue": 0.5})
	if err != nil {
		t.Fatalf("ContourBoxplot failed: %v", err)
	}
	got := fig.Bands[0]
	want := []float64{1, 0, 0, 0.5}
	for j := range want {
		if got[j] != want[j] {
			t.Errorf("inclusion[%d] = %v, want %v", j, got[j], want[j])
		}
	}
}

func TestBandDepth_CentralMemberIsDeepest(t *testing.T) {
	e := NewEngineWithSeed(1)

	// Member 1 sits between members 0 and 2 everywhere.
	ref, _ := e.Load("nested", "curves", [][]float64{
		{0, 0, 0, 0},
		{1, 1, 1, 1},
		{2, 2, 2, 2},
	})

	res, err := e.BandDepth(ref.ID, "mbd")
	if err != nil {
		t.Fatalf("BandDepth failed: %v", err)
	}
	if res.Median != 1 {
		t.Errorf("deepest member = %d, want 1", res.Median)
	}
	if res.Depths[1] != 1 {
		t.Errorf("central member depth = %v, want 1", res.Depths[1])
	}
	if res.Summary["max_depth"] != 1 {
		t.Errorf("max_depth = %v, want 1", res.Summary["max_depth"])
	}
}

func TestBandDepth_UnknownMethod(t *testing.T) {
	e := NewEngineWithSeed(1)
	ref, _ := e.Load("nested", "curves", [][]float64{{0, 0}, {1, 1}, {2, 2}})

	_, err := e.BandDepth(ref.ID, "halfspace")
	if err == nil {
		t.Fatal("expected an error for unknown method")
	}
	if !strings.Contains(err.Error(), `unknown method "halfspace"`) {
		t.Errorf("error %q should name the offending method", err)
	}
}

func TestBandDepth_DefaultsToMBD(t *testing.T) {
	e := NewEngineWithSeed(1)
	ref, _ := e.Load("nested", "curves", [][]float64{{0, 0}, {1, 1}, {2, 2}})

	res, err := e.BandDepth(ref.ID, "")
	if err != nil {
		t.Fatalf("BandDepth failed: %v", err)
	}
	if res.Method != "mbd" {
		t.Errorf("method = %q, want mbd", res.Method)
	}
}
