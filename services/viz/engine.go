// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package viz is the boundary to the ensemble-visualization/statistics
// toolkit.
//
// # Description
//
// The orchestrator talks to the toolkit only through the narrow contracts
// in this package: generate an ensemble, render a plot description, compute
// band depths. The reference Engine here keeps ensembles in memory and
// computes simple, well-defined summaries so the orchestration core is
// exercisable end to end; rendering backends and production-grade
// statistics live outside this repository and plug in behind the same
// contracts.
//
// # Thread Safety
//
// Engine is safe for concurrent use across sessions; datasets are
// append-only once stored.
package viz

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/google/uuid"
)

// =============================================================================
// Accepted Parameter Vocabularies
// =============================================================================

// Colormaps lists the colormap names the toolkit accepts.
var Colormaps = []string{
	"viridis", "plasma", "magma", "inferno", "cividis", "turbo", "jet",
	"coolwarm", "greys",
}

// DepthMethods lists the band-depth methods the toolkit accepts.
var DepthMethods = []string{"mbd", "bd2", "bd3", "simplicial", "fast"}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// Datasets
// =============================================================================

// Ensemble holds the raw member arrays behind a DataReference.
//
// For Kind "curves", Members[i] has Length samples. For Kind "fields",
// Members[i] is a flattened Length×Length grid.
type Ensemble struct {
	Ref     datatypes.DataReference
	Members [][]float64
}

// Figure is the render description a visualization call produces. The
// orchestrator passes it through as payload; interpreting it is a
// front-end concern.
type Figure struct {
	Kind       string         `json:"kind"` // "functional_boxplot" | "contour_boxplot"
	DataID     string         `json:"data_id"`
	Parameters map[string]any `json:"parameters"`

	// Median and Bands are index series for curves; for fields they are
	// per-cell envelope summaries.
	Median []float64   `json:"median,omitempty"`
	Bands  [][]float64 `json:"bands,omitempty"` // [lower, upper] per percentile pair
}

// DepthResult is the outcome of a band-depth computation.
type DepthResult struct {
	Method   string
	Depths   []float64
	Median   int // index of the deepest member
	Outliers []int
	Summary  map[string]float64
}

// =============================================================================
// Engine
// =============================================================================

// Engine is the in-process reference toolkit.
type Engine struct {
	mu       sync.RWMutex
	datasets map[string]*Ensemble
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// NewEngine creates an engine seeded from the clock.
func NewEngine() *Engine {
	return NewEngineWithSeed(time.Now().UnixNano())
}

// NewEngineWithSeed creates a deterministic engine for tests.
func NewEngineWithSeed(seed int64) *Engine {
	return &Engine{
		datasets: make(map[string]*Ensemble),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// GenerateSpec describes a synthetic ensemble request.
type GenerateSpec struct {
	Label   string
	Kind    string // "curves" or "fields"
	Members int
	Length  int
	Noise   float64
}

// Generate builds a synthetic ensemble and stores it.
//
// Curves are noisy damped sinusoids; fields are noisy radial gradients.
// Members and Length are clamped to small sane defaults when zero.
func (e *Engine) Generate(spec GenerateSpec) (*datatypes.DataReference, error) {
	if spec.Kind == "" {
		spec.Kind = "curves"
	}
	if spec.Kind != "curves" && spec.Kind != "fields" {
		return nil, fmt.Errorf("invalid value: %q is not a valid ensemble kind", spec.Kind)
	}
	if spec.Members <= 0 {
		spec.Members = 20
	}
	if spec.Length <= 0 {
		spec.Length = 50
	}
	if spec.Label == "" {
		spec.Label = "synthetic_" + spec.Kind
	}
	if spec.Noise <= 0 {
		spec.Noise = 0.1
	}

	size := spec.Length
	if spec.Kind == "fields" {
		size = spec.Length * spec.Length
	}

	members := make([][]float64, spec.Members)
	e.rngMu.Lock()
	for i := range members {
		member := make([]float64, size)
		phase := e.rng.Float64() * math.Pi
		amp := 0.8 + 0.4*e.rng.Float64()
		for j := range member {
			var base float64
			if spec.Kind == "curves" {
				x := float64(j) / float64(spec.Length)
				base = amp * math.Sin(2*math.Pi*x+phase) * math.Exp(-x)
			} else {
				x := float64(j%spec.Length)/float64(spec.Length) - 0.5
				y := float64(j/spec.Length)/float64(spec.Length) - 0.5
				base = amp * math.Exp(-(x*x+y*y)*4)
			}
			member[j] = base + spec.Noise*e.rng.NormFloat64()
		}
		members[i] = member
	}
	e.rngMu.Unlock()

	ref := datatypes.DataReference{
		ID:        uuid.New().String(),
		Label:     spec.Label,
		Kind:      spec.Kind,
		Members:   spec.Members,
		Length:    spec.Length,
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.datasets[ref.ID] = &Ensemble{Ref: ref, Members: members}
	e.mu.Unlock()

	return &ref, nil
}

// Load stores an externally supplied ensemble, validating member shapes.
func (e *Engine) Load(label, kind string, members [][]float64) (*datatypes.DataReference, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("invalid value: ensemble %q has no members", label)
	}
	if kind != "curves" && kind != "fields" {
		return nil, fmt.Errorf("invalid value: %q is not a valid ensemble kind", kind)
	}
	length := len(members[0])
	for i, m := range members {
		if len(m) != length {
			return nil, fmt.Errorf("shape mismatch: member %d has %d samples, expected %d", i, len(m), length)
		}
	}
	if kind == "fields" {
		edge := int(math.Sqrt(float64(length)))
		if edge*edge != length {
			return nil, fmt.Errorf("shape mismatch: field member length %d is not a square grid", length)
		}
		length = edge
	}

	ref := datatypes.DataReference{
		ID:        uuid.New().String(),
		Label:     label,
		Kind:      kind,
		Members:   len(members),
		Length:    length,
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.datasets[ref.ID] = &Ensemble{Ref: ref, Members: members}
	e.mu.Unlock()

	return &ref, nil
}

// Dataset returns the stored ensemble for a reference id.
func (e *Engine) Dataset(id string) (*Ensemble, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ens, ok := e.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %q not found", id)
	}
	return ens, nil
}

// =============================================================================
// Visualization
// =============================================================================

// Boxplot computes a functional-boxplot render description.
//
// # Inputs
//
//   - dataID: The ensemble to plot. Must exist.
//   - params: Materialized plot parameters. "colormap" and "percentiles"
//     are validated; unknown keys pass through to the figure untouched.
func (e *Engine) Boxplot(dataID string, params map[string]any) (*Figure, error) {
	ens, err := e.Dataset(dataID)
	if err != nil {
		return nil, err
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	percentiles := percentilePairs(params)
	length := len(ens.Members[0])
	median := make([]float64, length)
	bands := make([][]float64, 0, len(percentiles)*2)

	column := make([]float64, len(ens.Members))
	lowers := make([][]float64, len(percentiles))
	uppers := make([][]float64, len(percentiles))
	for p := range percentiles {
		lowers[p] = make([]float64, length)
		uppers[p] = make([]float64, length)
	}
	for j := 0; j < length; j++ {
		for i, m := range ens.Members {
			column[i] = m[j]
		}
		sort.Float64s(column)
		median[j] = quantile(column, 0.5)
		for p, pct := range percentiles {
			half := pct / 200 // e.g. 50 → central 50% band: q25..q75
			lowers[p][j] = quantile(column, 0.5-half)
			uppers[p][j] = quantile(column, 0.5+half)
		}
	}
	for p := range percentiles {
		bands = append(bands, lowers[p], uppers[p])
	}

	return &Figure{
		Kind:       "functional_boxplot",
		DataID:     dataID,
		Parameters: params,
		Median:     median,
		Bands:      bands,
	}, nil
}

// ContourBoxplot computes a contour-boxplot render description for field
// ensembles: the band of each member's isocontour mask at the requested
// isovalue, summarized per cell.
func (e *Engine) ContourBoxplot(dataID string, params map[string]any) (*Figure, error) {
	ens, err := e.Dataset(dataID)
	if err != nil {
		return nil, err
	}
	if ens.Ref.Kind != "fields" {
		return nil, fmt.Errorf("invalid value: contour boxplot needs a %q ensemble, got %q", "fields", ens.Ref.Kind)
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	isovalue := 0.5
	if v, ok := numberParam(params, "isovalue"); ok {
		isovalue = v
	}

	cells := len(ens.Members[0])
	inclusion := make([]float64, cells)
	for _, m := range ens.Members {
		for j, v := range m {
			if v >= isovalue {
				inclusion[j]++
			}
		}
	}
	n := float64(len(ens.Members))
	for j := range inclusion {
		inclusion[j] /= n
	}

	return &Figure{
		Kind:       "contour_boxplot",
		DataID:     dataID,
		Parameters: params,
		Bands:      [][]float64{inclusion},
	}, nil
}

// =============================================================================
// Statistics
// =============================================================================

// BandDepth computes per-member band depths.
//
// The "mbd" and "fast" methods compute modified band depth (proportion of
// the domain where a member lies inside the envelope of each member pair);
// "bd2", "bd3" and "simplicial" compute whole-containment variants. On
// small ensembles all are exact O(n²·len) computations.
func (e *Engine) BandDepth(dataID, method string) (*DepthResult, error) {
	ens, err := e.Dataset(dataID)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = "mbd"
	}
	if !contains(DepthMethods, method) {
		return nil, fmt.Errorf("unknown method %q for band depth", method)
	}

	n := len(ens.Members)
	length := len(ens.Members[0])
	depths := make([]float64, n)
	modified := method == "mbd" || method == "fast"

	for i := 0; i < n; i++ {
		var total float64
		var pairs int
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				if a == i || b == i {
					continue
				}
				pairs++
				inside := 0
				for j := 0; j < length; j++ {
					lo := math.Min(ens.Members[a][j], ens.Members[b][j])
					hi := math.Max(ens.Members[a][j], ens.Members[b][j])
					if ens.Members[i][j] >= lo && ens.Members[i][j] <= hi {
						inside++
					}
				}
				if modified {
					total += float64(inside) / float64(length)
				} else if inside == length {
					total++
				}
			}
		}
		if pairs > 0 {
			depths[i] = total / float64(pairs)
		}
	}

	medianIdx := 0
	for i, d := range depths {
		if d > depths[medianIdx] {
			medianIdx = i
		}
	}

	// Members below half the median member's depth are flagged outlying.
	var outliers []int
	threshold := depths[medianIdx] / 2
	for i, d := range depths {
		if d < threshold {
			outliers = append(outliers, i)
		}
	}

	sorted := append([]float64(nil), depths...)
	sort.Float64s(sorted)
	summary := map[string]float64{
		"median_depth":  quantile(sorted, 0.5),
		"mean_depth":    mean(depths),
		"min_depth":     sorted[0],
		"max_depth":     sorted[len(sorted)-1],
		"outlier_count": float64(len(outliers)),
	}

	return &DepthResult{
		Method:   method,
		Depths:   depths,
		Median:   medianIdx,
		Outliers: outliers,
		Summary:  summary,
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func validateParams(params map[string]any) error {
	if v, ok := params["colormap"]; ok {
		s, isStr := v.(string)
		if !isStr || !contains(Colormaps, s) {
			return fmt.Errorf("unknown colormap %q", fmt.Sprintf("%v", v))
		}
	}
	if v, ok := params["method"]; ok {
		s, isStr := v.(string)
		if !isStr || !contains(DepthMethods, s) {
			return fmt.Errorf("unknown method %q", fmt.Sprintf("%v", v))
		}
	}
	return nil
}

// percentilePairs reads the "percentiles" parameter, defaulting to the
// classic central-50 band.
func percentilePairs(params map[string]any) []float64 {
	v, ok := params["percentiles"]
	if !ok {
		return []float64{50}
	}
	switch list := v.(type) {
	case []float64:
		if len(list) > 0 {
			return list
		}
	case []any:
		out := make([]float64, 0, len(list))
		for _, item := range list {
			if f, ok := item.(float64); ok {
				out = append(out, f)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []float64{50}
}

func numberParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// quantile reads the q-th quantile from an ascending-sorted slice using
// linear interpolation.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
