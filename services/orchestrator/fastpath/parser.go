// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fastpath implements the deterministic keyword parser for direct
// parameter updates.
//
// # Description
//
// The fast path lets utterances like "make the width 3" or "colormap
// plasma" mutate the last visualization's parameters without a round trip
// to the LLM backend. Parse is a pure function: no I/O, no network, no
// global state. It recognizes a fixed vocabulary of keyword+value patterns,
// case-insensitively, tolerant of surrounding words.
//
// # Recognition Semantics
//
// A command is recognized when at least one field was successfully
// populated. A value that cannot be coerced to the expected type fails that
// field only; the rest of the utterance is still scanned. An utterance
// matching zero patterns returns ok=false, a distinguishable sentinel,
// never a zero-valued SimpleCommand (Parse never returns a command with no
// populated fields).
//
// # Thread Safety
//
// Parse is stateless and safe for concurrent use.
package fastpath

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Vocabulary
// =============================================================================

// namedColors is the fixed set of color values the parser accepts after a
// color keyword. Tokens outside this set leave the field unset.
var namedColors = map[string]bool{
	"red": true, "blue": true, "green": true, "black": true, "white": true,
	"orange": true, "purple": true, "teal": true, "gray": true, "grey": true,
	"magenta": true, "cyan": true, "yellow": true, "pink": true,
	"brown": true, "navy": true,
}

// colormaps is the fixed set of accepted colormap names.
var colormaps = map[string]bool{
	"viridis": true, "plasma": true, "magma": true, "inferno": true,
	"cividis": true, "turbo": true, "jet": true, "coolwarm": true,
	"greys": true,
}

// depthMethods is the enumerated method selector vocabulary.
var depthMethods = map[string]bool{
	"mbd": true, "bd2": true, "bd3": true, "simplicial": true, "fast": true,
}

// toggleTargets maps show/hide targets to SimpleCommand fields.
var toggleTargets = map[string]bool{
	"outliers": true, "median": true, "grid": true, "bands": true,
}

// =============================================================================
// SimpleCommand
// =============================================================================

// SimpleCommand is the sparse fast-path parse result.
//
// All fields default to unset (nil). Only fields explicitly present in the
// utterance are populated. The "not a command at all" case is signalled by
// Parse's ok=false return, never by a SimpleCommand with every field nil.
type SimpleCommand struct {
	Color       *string
	Colormap    *string
	Width       *float64
	Alpha       *float64
	Isovalue    *float64
	Scale       *float64
	Percentiles []float64
	Method      *string

	ShowOutliers *bool
	ShowMedian   *bool
	ShowGrid     *bool
	ShowBands    *bool
}

// FieldCount returns the number of populated fields.
func (c *SimpleCommand) FieldCount() int {
	return len(c.Fields())
}

// Fields returns the populated fields as a parameter patch, keyed by the
// visualization parameter names the tools understand.
//
// The patch is what the orchestrator merges into a copy of the last
// visualization's parameters.
func (c *SimpleCommand) Fields() map[string]any {
	out := make(map[string]any)
	if c.Color != nil {
		out["color"] = *c.Color
	}
	if c.Colormap != nil {
		out["colormap"] = *c.Colormap
	}
	if c.Width != nil {
		out["width"] = *c.Width
	}
	if c.Alpha != nil {
		out["alpha"] = *c.Alpha
	}
	if c.Isovalue != nil {
		out["isovalue"] = *c.Isovalue
	}
	if c.Scale != nil {
		out["scale"] = *c.Scale
	}
	if c.Percentiles != nil {
		out["percentiles"] = append([]float64(nil), c.Percentiles...)
	}
	if c.Method != nil {
		out["method"] = *c.Method
	}
	if c.ShowOutliers != nil {
		out["show_outliers"] = *c.ShowOutliers
	}
	if c.ShowMedian != nil {
		out["show_median"] = *c.ShowMedian
	}
	if c.ShowGrid != nil {
		out["show_grid"] = *c.ShowGrid
	}
	if c.ShowBands != nil {
		out["show_bands"] = *c.ShowBands
	}
	return out
}

// Canonical returns the command's canonical re-serialization.
//
// Re-parsing the canonical form yields the same populated field set; the
// CLI uses it to echo what the fast path understood.
func (c *SimpleCommand) Canonical() string {
	var parts []string
	if c.Color != nil {
		parts = append(parts, "color "+*c.Color)
	}
	if c.Colormap != nil {
		parts = append(parts, "colormap "+*c.Colormap)
	}
	if c.Width != nil {
		parts = append(parts, "width "+formatNumber(*c.Width))
	}
	if c.Alpha != nil {
		parts = append(parts, "alpha "+formatNumber(*c.Alpha))
	}
	if c.Isovalue != nil {
		parts = append(parts, "isovalue "+formatNumber(*c.Isovalue))
	}
	if c.Scale != nil {
		parts = append(parts, "scale "+formatNumber(*c.Scale))
	}
	if len(c.Percentiles) > 0 {
		nums := make([]string, len(c.Percentiles))
		for i, p := range c.Percentiles {
			nums[i] = formatNumber(p)
		}
		parts = append(parts, "percentiles "+strings.Join(nums, " "))
	}
	if c.Method != nil {
		parts = append(parts, "method "+*c.Method)
	}
	parts = append(parts, toggleWord("outliers", c.ShowOutliers)...)
	parts = append(parts, toggleWord("median", c.ShowMedian)...)
	parts = append(parts, toggleWord("grid", c.ShowGrid)...)
	parts = append(parts, toggleWord("bands", c.ShowBands)...)
	return strings.Join(parts, " ")
}

func toggleWord(target string, v *bool) []string {
	if v == nil {
		return nil
	}
	if *v {
		return []string{"show " + target}
	}
	return []string{"hide " + target}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// =============================================================================
// Parse
// =============================================================================

// Parse maps a raw utterance to a SimpleCommand.
//
// # Inputs
//
//   - utterance: The raw user input. Case and surrounding words are
//     irrelevant; only keyword+value patterns are extracted.
//
// # Outputs
//
//   - *SimpleCommand: The populated command. Nil when ok is false.
//   - bool: False when no pattern matched ("not a fast-path command"),
//     which routes the utterance to the slow path.
func Parse(utterance string) (*SimpleCommand, bool) {
	tokens := tokenize(utterance)
	if len(tokens) == 0 {
		return nil, false
	}

	cmd := &SimpleCommand{}
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "color", "colour":
			if v, ok := nextIn(tokens, i, namedColors); ok {
				cmd.Color = &v
			}
		case "colormap", "cmap", "palette":
			if v, ok := nextIn(tokens, i, colormaps); ok {
				cmd.Colormap = &v
			}
		case "width", "linewidth", "thickness":
			if v, ok := nextNumber(tokens, i); ok {
				cmd.Width = &v
			}
		case "alpha", "opacity", "transparency":
			if v, ok := nextNumber(tokens, i); ok {
				cmd.Alpha = &v
			}
		case "isovalue", "isoline", "iso":
			if v, ok := nextNumber(tokens, i); ok {
				cmd.Isovalue = &v
			}
		case "scale":
			if v, ok := nextNumber(tokens, i); ok {
				cmd.Scale = &v
			}
		case "percentile", "percentiles":
			if vals := numberRun(tokens, i); len(vals) > 0 {
				cmd.Percentiles = vals
			}
		case "method", "depth":
			if v, ok := nextIn(tokens, i, depthMethods); ok {
				cmd.Method = &v
			}
		case "show", "hide", "display":
			visible := tokens[i] != "hide"
			if target, ok := nextIn(tokens, i, toggleTargets); ok {
				cmd.setToggle(target, visible)
			}
		}
	}

	if cmd.FieldCount() == 0 {
		return nil, false
	}
	return cmd, true
}

// MustParse is a test helper that panics when the utterance is not a
// fast-path command.
func MustParse(utterance string) *SimpleCommand {
	cmd, ok := Parse(utterance)
	if !ok {
		panic(fmt.Sprintf("fastpath: %q is not a command", utterance))
	}
	return cmd
}

func (c *SimpleCommand) setToggle(target string, visible bool) {
	v := visible
	switch target {
	case "outliers":
		c.ShowOutliers = &v
	case "median":
		c.ShowMedian = &v
	case "grid":
		c.ShowGrid = &v
	case "bands":
		c.ShowBands = &v
	}
}

// =============================================================================
// Token Helpers
// =============================================================================

// tokenize lowercases the utterance and strips punctuation that users
// attach to values ("width: 3," → "width" "3").
func tokenize(s string) []string {
	raw := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// nextIn returns the token after position i when it belongs to the given
// vocabulary. A token outside the set fails the field, not the parse.
func nextIn(tokens []string, i int, vocab map[string]bool) (string, bool) {
	if i+1 >= len(tokens) {
		return "", false
	}
	v := tokens[i+1]
	if !vocab[v] {
		return "", false
	}
	return v, true
}

// nextNumber coerces the token after position i to a float. Non-numeric
// tokens ("width huge") leave the field unset.
func nextNumber(tokens []string, i int) (float64, bool) {
	if i+1 >= len(tokens) {
		return 0, false
	}
	v, err := strconv.ParseFloat(tokens[i+1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// numberRun collects the consecutive numeric tokens after position i,
// sorted ascending so "percentiles 75 25 50" and "percentiles 25 50 75"
// produce the same field.
func numberRun(tokens []string, i int) []float64 {
	var vals []float64
	for j := i + 1; j < len(tokens); j++ {
		v, err := strconv.ParseFloat(tokens[j], 64)
		if err != nil {
			break
		}
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	return vals
}
