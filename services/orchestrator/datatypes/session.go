// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the per-conversation session aggregate. The session is
// owned exclusively by the orchestrator: handlers and tools receive it for
// the duration of one turn and must not retain references across turns.
package datatypes

import (
	"time"
)

// =============================================================================
// Dataset Reference
// =============================================================================

// DataReference identifies the most recently loaded or generated ensemble
// dataset.
//
// # Description
//
// A DataReference is written by data-generation and load tools and read by
// visualization and statistics tools. The reference is a handle only; the
// backing arrays live in the toolkit engine. Referencing a dataset before
// any load is a fast-fail condition, never a silent empty result.
type DataReference struct {
	// ID is the engine-assigned dataset handle (UUID).
	ID string `json:"id"`

	// Label is a human-readable dataset name, e.g. "synthetic_curves".
	Label string `json:"label"`

	// Kind describes the ensemble shape: "curves" or "fields".
	Kind string `json:"kind"`

	// Members is the number of ensemble members.
	Members int `json:"members"`

	// Length is the number of samples per member (curves) or the grid
	// edge length (fields).
	Length int `json:"length"`

	// CreatedAt is when the dataset was generated or loaded.
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// Visualization Record
// =============================================================================

// Visualization is the full materialized parameter set of the most recent
// plot request.
//
// # Description
//
// At most one Visualization is tracked per session. A new visualization
// tool call replaces the record wholesale; a fast-path command updates only
// the named fields within Parameters and re-invokes the same ToolName.
type Visualization struct {
	// ToolName is the registry name of the tool that produced the plot,
	// e.g. "functional_boxplot" or "contour_boxplot".
	ToolName string `json:"tool_name"`

	// Parameters is the complete parameter set sent to the tool,
	// including defaults that were filled in.
	Parameters map[string]any `json:"parameters"`

	// RenderedAt is when the plot was last produced.
	RenderedAt time.Time `json:"rendered_at"`
}

// Clone returns a deep copy of the visualization record.
//
// Fast-path merging mutates a copy so that a failed re-invocation leaves
// the original record untouched.
func (v *Visualization) Clone() *Visualization {
	if v == nil {
		return nil
	}
	params := make(map[string]any, len(v.Parameters))
	for k, val := range v.Parameters {
		params[k] = val
	}
	return &Visualization{
		ToolName:   v.ToolName,
		Parameters: params,
		RenderedAt: v.RenderedAt,
	}
}

// =============================================================================
// Statistics and Report Records
// =============================================================================

// Statistics is the structured numeric summary produced by the statistics
// tool. It is consumed only by the report tool; its absence when a report
// is requested is a precondition failure, not a crash.
type Statistics struct {
	// Kind names the statistic family, e.g. "band_depth".
	Kind string `json:"kind"`

	// Method is the depth method used, e.g. "mbd" or "simplicial".
	Method string `json:"method"`

	// DataID is the dataset the statistics were computed over.
	DataID string `json:"data_id"`

	// Summary holds scalar aggregates: median_depth, mean_depth,
	// outlier_count and friends.
	Summary map[string]float64 `json:"summary"`

	// Depths holds the per-member depth values, index-aligned with the
	// ensemble members.
	Depths []float64 `json:"depths"`

	// Outliers lists member indices flagged as outlying.
	Outliers []int `json:"outliers"`

	// ComputedAt is when the statistics were produced.
	ComputedAt time.Time `json:"computed_at"`
}

// AnalysisReport is the natural-language analysis generated from a
// Statistics record.
type AnalysisReport struct {
	Text        string    `json:"text"`
	Format      string    `json:"format"` // "markdown" or "plain"
	WordCount   int       `json:"word_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// =============================================================================
// Session State
// =============================================================================

// SessionState is the single mutable per-conversation aggregate.
//
// # Description
//
// SessionState holds everything the orchestrator carries across turns:
// the active dataset reference, the last visualization parameters, the
// latest computed statistics, the generated report, and the diagnostic
// mode flags. Error history lives beside the state in the session's error
// tracker, not inside this struct, so that the entries' immutability can
// be enforced in one place.
//
// # Thread Safety
//
// SessionState is NOT safe for concurrent use. The owning session
// serializes turns; exactly one turn mutates the state at a time (see the
// orchestrator package).
type SessionState struct {
	// ID is the session identifier (UUID).
	ID string `json:"id"`

	// TurnCount increments exactly once per user utterance, regardless
	// of which path the turn took or whether it succeeded.
	TurnCount int `json:"turn_count"`

	// CurrentData is the most recently loaded/generated dataset, or nil
	// before any load.
	CurrentData *DataReference `json:"current_data,omitempty"`

	// LastVisualization is the most recent plot request, or nil if no
	// visualization has run yet.
	LastVisualization *Visualization `json:"last_visualization,omitempty"`

	// Statistics is the latest numeric summary, or nil.
	Statistics *Statistics `json:"statistics,omitempty"`

	// Report is the latest generated analysis report, or nil.
	Report *AnalysisReport `json:"report,omitempty"`

	// DebugMode surfaces enriched error hints and raw traces to the
	// user. It never changes what gets recorded.
	DebugMode bool `json:"debug_mode"`

	// VerboseMode opens the session's output gate for diagnostic
	// emission. Independent of DebugMode.
	VerboseMode bool `json:"verbose_mode"`

	// CreatedAt is when the session was opened.
	CreatedAt time.Time `json:"created_at"`

	// LastActive is updated at the end of every turn; the idle sweeper
	// uses it for TTL eviction.
	LastActive time.Time `json:"last_active"`
}

// NewSessionState returns a fresh session aggregate.
func NewSessionState(id string) *SessionState {
	now := time.Now()
	return &SessionState{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
	}
}

// =============================================================================
// Context Summary
// =============================================================================

// ContextSummary is the read-only snapshot of session state exposed to the
// inspection interface and to the LLM planner.
//
// # Description
//
// The planner receives this summary, never the SessionState itself: the
// slow path must not be able to mutate state directly, only propose tool
// calls. The same summary backs the /v1/sessions/:id/context endpoint and
// the CLI /context command.
type ContextSummary struct {
	SessionID         string `json:"session_id"`
	TurnCount         int    `json:"turn_count"`
	HasData           bool   `json:"has_data"`
	DataLabel         string `json:"data_label,omitempty"`
	DataKind          string `json:"data_kind,omitempty"`
	DataMembers       int    `json:"data_members,omitempty"`
	HasVisualization  bool   `json:"has_visualization"`
	VisualizationTool string `json:"visualization_tool,omitempty"`
	HasStatistics     bool   `json:"has_statistics"`
	StatisticsKind    string `json:"statistics_kind,omitempty"`
	HasReport         bool   `json:"has_report"`
	ReportWordCount   int    `json:"report_word_count,omitempty"`
	DebugMode         bool   `json:"debug_mode"`
	VerboseMode       bool   `json:"verbose_mode"`
	ErrorCount        int    `json:"error_count"`
}

// Summarize builds the inspection snapshot for this state.
//
// errorCount is supplied by the caller because error history lives in the
// session's tracker, not in the state aggregate.
func (s *SessionState) Summarize(errorCount int) ContextSummary {
	cs := ContextSummary{
		SessionID:   s.ID,
		TurnCount:   s.TurnCount,
		DebugMode:   s.DebugMode,
		VerboseMode: s.VerboseMode,
		ErrorCount:  errorCount,
	}
	if s.CurrentData != nil {
		cs.HasData = true
		cs.DataLabel = s.CurrentData.Label
		cs.DataKind = s.CurrentData.Kind
		cs.DataMembers = s.CurrentData.Members
	}
	if s.LastVisualization != nil {
		cs.HasVisualization = true
		cs.VisualizationTool = s.LastVisualization.ToolName
	}
	if s.Statistics != nil {
		cs.HasStatistics = true
		cs.StatisticsKind = s.Statistics.Kind
	}
	if s.Report != nil {
		cs.HasReport = true
		cs.ReportWordCount = s.Report.WordCount
	}
	return cs
}
