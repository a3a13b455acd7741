// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the callable tool contract and the registry the
// orchestrator selects from.
//
// # Description
//
// A tool is an external callable: data generation, visualization,
// statistics, or report generation. Each Spec declares an input schema and
// the session-state fields it reads and writes; the orchestrator inspects
// only Result.Status and the declared state writes, never tool-specific
// payload semantics.
package tools

import (
	"context"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

// =============================================================================
// Results
// =============================================================================

// Status is the tool invocation outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the uniform envelope every tool returns.
//
// On success the non-nil state-write fields are merged into session state
// by the orchestrator. On error nothing is merged; ErrorKind and RawTrace
// feed the error tracker.
type Result struct {
	Status  Status
	Message string

	// ErrorKind and RawTrace are set only on error.
	ErrorKind string
	RawTrace  string

	// Payload carries tool-specific data the orchestrator passes through
	// without interpretation (figure descriptions, sample values).
	Payload map[string]any

	// Declared state writes. A tool populates only the fields listed in
	// its Spec.Writes; the orchestrator merges them on success.
	Data          *datatypes.DataReference
	Visualization *datatypes.Visualization
	Statistics    *datatypes.Statistics
	Report        *datatypes.AnalysisReport
}

// Errorf builds an error result with no state writes.
func Errorf(message, errorKind, rawTrace string) *Result {
	return &Result{
		Status:    StatusError,
		Message:   message,
		ErrorKind: errorKind,
		RawTrace:  rawTrace,
	}
}

// =============================================================================
// Specs
// =============================================================================

// State field names used in Reads/Writes declarations.
const (
	FieldData          = "current_data"
	FieldVisualization = "last_visualization"
	FieldStatistics    = "processed_statistics"
	FieldReport        = "analysis_report"
)

// ParamSpec describes one tool parameter for schema validation and for the
// planner prompt.
type ParamSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "number", "integer", "boolean", "number_list"
	Required    bool     `json:"required"`
	Default     string   `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description"`
}

// Func executes a tool invocation.
//
// Tools receive the session state read-only for the duration of the call;
// all mutation flows back through the Result's declared state writes.
type Func func(ctx context.Context, args map[string]any, state *datatypes.SessionState) *Result

// Spec is one registered tool.
type Spec struct {
	// Name is the registry key the planner selects by.
	Name string

	// Description is shown to the LLM backend when building plans.
	Description string

	// Params is the declared input schema.
	Params []ParamSpec

	// Reads and Writes declare the session-state fields this tool
	// touches, by the Field* constants above.
	Reads  []string
	Writes []string

	// Run executes the tool. Must not be nil.
	Run Func
}

// WritesField reports whether the spec declares a write to the given
// state field.
func (s *Spec) WritesField(field string) bool {
	for _, w := range s.Writes {
		if w == field {
			return true
		}
	}
	return false
}
