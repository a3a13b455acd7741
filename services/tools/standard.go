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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/ContourAI/ContourChat/services/viz"
	"github.com/tmc/langchaingo/textsplitter"
)

// Generator produces prose for the report tool. The LLM client satisfies
// this; tests substitute a canned implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RegisterStandard wires the toolkit tools into a registry.
//
// # Description
//
// Registers the built-in tool set: ensemble generation, the two boxplot
// visualizations, band-depth statistics and report generation. Every tool
// declares the session fields it reads and writes so the orchestrator can
// enforce preconditions and merge results without knowing tool internals.
//
// # Inputs
//
//   - reg: Destination registry. Must be non-nil.
//   - engine: The toolkit boundary visualizations and statistics run
//     against. Must be non-nil.
//   - gen: Prose generator for generate_report. May be nil; the report
//     tool then falls back to a template summary.
func RegisterStandard(reg *Registry, engine *viz.Engine, gen Generator) {
	reg.Register(generateEnsembleSpec(engine))
	reg.Register(functionalBoxplotSpec(engine))
	reg.Register(contourBoxplotSpec(engine))
	reg.Register(bandDepthSpec(engine))
	reg.Register(generateReportSpec(gen))
}

// =============================================================================
// generate_ensemble
// =============================================================================

func generateEnsembleSpec(engine *viz.Engine) *Spec {
	return &Spec{
		Name:        "generate_ensemble",
		Description: "Create a synthetic ensemble dataset (curves or fields) and make it the session's current data.",
		Params: []ParamSpec{
			{Name: "kind", Type: "string", Default: "curves", Enum: []string{"curves", "fields"}, Description: "Ensemble kind."},
			{Name: "members", Type: "number", Default: "20", Description: "Number of ensemble members."},
			{Name: "length", Type: "number", Default: "50", Description: "Samples per curve, or grid edge for fields."},
			{Name: "label", Type: "string", Description: "Human-readable dataset label."},
		},
		Writes: []string{FieldData},
		Run: func(ctx context.Context, args map[string]any, state *datatypes.SessionState) *Result {
			spec := viz.GenerateSpec{
				Kind:    stringArg(args, "kind"),
				Members: intArg(args, "members"),
				Length:  intArg(args, "length"),
				Label:   stringArg(args, "label"),
			}
			ref, err := engine.Generate(spec)
			if err != nil {
				return failure(err)
			}
			return &Result{
				Status:  StatusSuccess,
				Message: fmt.Sprintf("generated %q: %d %s members of length %d", ref.Label, ref.Members, ref.Kind, ref.Length),
				Data:    ref,
			}
		},
	}
}

// =============================================================================
// functional_boxplot
// =============================================================================

func functionalBoxplotSpec(engine *viz.Engine) *Spec {
	return &Spec{
		Name:        "functional_boxplot",
		Description: "Render a functional boxplot of the current ensemble with the given plot parameters.",
		Params: []ParamSpec{
			{Name: "colormap", Type: "string", Enum: viz.Colormaps, Description: "Colormap for the band fill."},
			{Name: "color", Type: "string", Description: "Median line color."},
			{Name: "width", Type: "number", Description: "Median line width."},
			{Name: "alpha", Type: "number", Description: "Band opacity in [0,1]."},
			{Name: "percentiles", Type: "array", Description: "Central band percentiles, e.g. [25, 50, 75]."},
			{Name: "show_outliers", Type: "boolean", Description: "Draw outlying members."},
			{Name: "show_median", Type: "boolean", Description: "Draw the median curve."},
			{Name: "show_grid", Type: "boolean", Description: "Draw a background grid."},
		},
		Reads:  []string{FieldData},
		Writes: []string{FieldVisualization},
		Run: func(ctx context.Context, args map[string]any, state *datatypes.SessionState) *Result {
			if state.CurrentData == nil {
				return failure(fmt.Errorf("dataset not found: no current data in this session"))
			}
			fig, err := engine.Boxplot(state.CurrentData.ID, cloneArgs(args))
			if err != nil {
				return failure(err)
			}
			return &Result{
				Status:  StatusSuccess,
				Message: fmt.Sprintf("rendered functional boxplot of %q", state.CurrentData.Label),
				Payload: map[string]any{"figure": fig},
				Visualization: &datatypes.Visualization{
					ToolName:   "functional_boxplot",
					Parameters: cloneArgs(args),
					RenderedAt: time.Now(),
				},
			}
		},
	}
}

// =============================================================================
// contour_boxplot
// =============================================================================

func contourBoxplotSpec(engine *viz.Engine) *Spec {
	return &Spec{
		Name:        "contour_boxplot",
		Description: "Render a contour boxplot of the current field ensemble at an isovalue.",
		Params: []ParamSpec{
			{Name: "isovalue", Type: "number", Default: "0.5", Description: "Isocontour level."},
			{Name: "colormap", Type: "string", Enum: viz.Colormaps, Description: "Colormap for the inclusion bands."},
			{Name: "alpha", Type: "number", Description: "Band opacity in [0,1]."},
			{Name: "show_outliers", Type: "boolean", Description: "Draw outlying contours."},
		},
		Reads:  []string{FieldData},
		Writes: []string{FieldVisualization},
		Run: func(ctx context.Context, args map[string]any, state *datatypes.SessionState) *Result {
			if state.CurrentData == nil {
				return failure(fmt.Errorf("dataset not found: no current data in this session"))
			}
			fig, err := engine.ContourBoxplot(state.CurrentData.ID, cloneArgs(args))
			if err != nil {
				return failure(err)
			}
			return &Result{
				Status:  StatusSuccess,
				Message: fmt.Sprintf("rendered contour boxplot of %q", state.CurrentData.Label),
				Payload: map[string]any{"figure": fig},
				Visualization: &datatypes.Visualization{
					ToolName:   "contour_boxplot",
					Parameters: cloneArgs(args),
					RenderedAt: time.Now(),
				},
			}
		},
	}
}

// =============================================================================
// band_depth
// =============================================================================

func bandDepthSpec(engine *viz.Engine) *Spec {
	return &Spec{
		Name:        "band_depth",
		Description: "Compute band-depth statistics over the current ensemble.",
		Params: []ParamSpec{
			{Name: "method", Type: "string", Default: "mbd", Enum: viz.DepthMethods, Description: "Depth method."},
		},
		Reads:  []string{FieldData},
		Writes: []string{FieldStatistics},
		Run: func(ctx context.Context, args map[string]any, state *datatypes.SessionState) *Result {
			if state.CurrentData == nil {
				return failure(fmt.Errorf("dataset not found: no current data in this session"))
			}
			res, err := engine.BandDepth(state.CurrentData.ID, stringArg(args, "method"))
			if err != nil {
				return failure(err)
			}
			return &Result{
				Status: StatusSuccess,
				Message: fmt.Sprintf("computed %s depths for %q: median member %d, %d outliers",
					res.Method, state.CurrentData.Label, res.Median, len(res.Outliers)),
				Statistics: &datatypes.Statistics{
					Kind:       "band_depth",
					Method:     res.Method,
					DataID:     state.CurrentData.ID,
					Summary:    res.Summary,
					Depths:     res.Depths,
					Outliers:   res.Outliers,
					ComputedAt: time.Now(),
				},
			}
		},
	}
}

// =============================================================================
// generate_report
// =============================================================================

// reportChunkSize bounds the statistics context handed to the generator
// per prompt section.
const reportChunkSize = 2000

func generateReportSpec(gen Generator) *Spec {
	return &Spec{
		Name:        "generate_report",
		Description: "Write a prose analysis report from the session's computed statistics.",
		Params: []ParamSpec{
			{Name: "format", Type: "string", Default: "markdown", Enum: []string{"markdown", "plain"}, Description: "Report format."},
		},
		Reads:  []string{FieldStatistics},
		Writes: []string{FieldReport},
		Run: func(ctx context.Context, args map[string]any, state *datatypes.SessionState) *Result {
			if state.Statistics == nil {
				return failure(fmt.Errorf("missing dependency: no processed statistics in this session"))
			}

			format := stringArg(args, "format")
			if format == "" {
				format = "markdown"
			}

			text, err := composeReport(ctx, gen, state, format)
			if err != nil {
				return failure(err)
			}

			return &Result{
				Status:  StatusSuccess,
				Message: "generated analysis report",
				Report: &datatypes.AnalysisReport{
					Text:        text,
					Format:      format,
					WordCount:   len(strings.Fields(text)),
					GeneratedAt: time.Now(),
				},
			}
		},
	}
}

// composeReport builds the report prompt from the session statistics and
// asks the generator to write it. The statistics summary is split into
// bounded chunks so a large summary never overruns the prompt budget.
func composeReport(ctx context.Context, gen Generator, state *datatypes.SessionState, format string) (string, error) {
	summary := statisticsNarrative(state)

	if gen == nil {
		return summary, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(reportChunkSize),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(summary)
	if err != nil {
		return "", fmt.Errorf("splitting statistics summary: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Write a concise analysis report in ")
	sb.WriteString(format)
	sb.WriteString(" from these ensemble statistics. Describe the central tendency, spread and outliers.\n\n")
	for _, c := range chunks {
		sb.WriteString(c)
		sb.WriteString("\n")
	}

	text, err := gen.Generate(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("report generation: %w", err)
	}
	return text, nil
}

// statisticsNarrative renders the computed statistics as plain text. It is
// both the prompt context and the generator-less fallback report.
func statisticsNarrative(state *datatypes.SessionState) string {
	st := state.Statistics

	var sb strings.Builder
	fmt.Fprintf(&sb, "Band-depth analysis (%s method)", st.Method)
	if state.CurrentData != nil {
		fmt.Fprintf(&sb, " of %q, %d %s members of length %d",
			state.CurrentData.Label, state.CurrentData.Members,
			state.CurrentData.Kind, state.CurrentData.Length)
	}
	sb.WriteString(".\n")

	keys := make([]string, 0, len(st.Summary))
	for k := range st.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %.4f\n", k, st.Summary[k])
	}
	if len(st.Outliers) > 0 {
		fmt.Fprintf(&sb, "Outlying members: %v\n", st.Outliers)
	} else {
		sb.WriteString("No outlying members detected.\n")
	}
	return sb.String()
}

// failure wraps a toolkit error as an error result. Error classification
// happens upstream where the raw trace is inspected alongside the message.
func failure(err error) *Result {
	return Errorf(err.Error(), "", err.Error())
}

// =============================================================================
// Argument Coercion
// =============================================================================

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
