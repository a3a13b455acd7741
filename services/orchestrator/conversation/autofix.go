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
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/ContourAI/ContourChat/services/tools"
	"github.com/ContourAI/ContourChat/services/viz"
)

// quotedValue pulls the first quoted token out of a toolkit error message,
// e.g. `unknown colormap "virids"`.
var quotedValue = regexp.MustCompile(`"([^"]+)"`)

// colormapAliases maps common misspellings and shorthand to canonical
// colormap names.
var colormapAliases = map[string]string{
	"virdis":    "viridis",
	"virids":    "viridis",
	"grey":      "greys",
	"gray":      "greys",
	"grays":     "greys",
	"cool warm": "coolwarm",
	"magna":     "magma",
}

// methodAliases maps spelled-out depth method names to the toolkit's
// identifiers.
var methodAliases = map[string]string{
	"modified band depth": "mbd",
	"modified":            "mbd",
	"band depth":          "bd2",
	"whole band":          "bd2",
	"simplical":           "simplicial",
}

// tryAutoFix attempts a single corrected-parameter retry after an
// invalid-value failure.
//
// # Description
//
// Only categorized invalid-value failures that name the rejected value in
// quotes qualify. The value is matched against the known colormap and
// depth method vocabularies by case folding and a small alias table; on a
// unique match, the original failure is recorded with its AutoFixed flag
// set and the tool runs once more with the corrected argument. Anything
// else is left for the normal failure path, which records the entry
// unfixed.
//
// # Outputs
//
//   - bool: True when a retry ran and succeeded.
//   - *tools.Result: The successful retry result; nil otherwise.
func (e *Engine) tryAutoFix(ctx context.Context, sess *Session, spec *tools.Spec,
	args map[string]any, failed *tools.Result) (bool, *tools.Result) {

	kind := errtrack.Classify(errors.New(failed.Message), failed.RawTrace)
	if kind != errtrack.KindInvalidValue {
		return false, nil
	}

	m := quotedValue.FindStringSubmatch(failed.Message)
	if m == nil {
		return false, nil
	}
	bad := m[1]

	field, good := correctValue(bad)
	if field == "" {
		return false, nil
	}

	retryArgs := make(map[string]any, len(args)+1)
	for k, v := range args {
		retryArgs[k] = v
	}
	retryArgs[field] = good

	result := spec.Run(ctx, retryArgs, sess.State)
	if result.Status != tools.StatusSuccess {
		return false, nil
	}

	entry := sess.Errors.Record(spec.Name, kind, failed.Message, failed.RawTrace,
		friendlyFailure(spec.Name, kind),
		&errtrack.RecordOptions{
			AutoFixed: true,
			Context:   map[string]any{"corrected": map[string]string{field: good}},
		})
	if e.metrics != nil {
		e.metrics.RecordErrorEntry(string(kind))
	}
	slog.Info("Auto-corrected a rejected parameter",
		"session_id", sess.State.ID,
		"tool", spec.Name,
		"from", bad,
		"to", good,
		"error_id", entry.ID)
	sess.Gate.EmitSecondaryf(false, "auto-corrected %q to %q and retried %s", bad, good, spec.Name)

	return true, result
}

// correctValue maps a rejected value to the argument field and canonical
// value it most likely meant. Returns ("", "") when no confident match
// exists.
func correctValue(bad string) (field, good string) {
	folded := strings.ToLower(strings.TrimSpace(bad))

	if v, ok := colormapAliases[folded]; ok {
		return "colormap", v
	}
	if v := foldMatch(folded, viz.Colormaps); v != "" {
		return "colormap", v
	}

	if v, ok := methodAliases[folded]; ok {
		return "method", v
	}
	if v := foldMatch(folded, viz.DepthMethods); v != "" {
		return "method", v
	}

	return "", ""
}

// foldMatch finds the single vocabulary entry equal to the folded value or
// differing from it only by one trailing character. Ambiguity disqualifies.
func foldMatch(folded string, vocab []string) string {
	var match string
	for _, v := range vocab {
		if v == folded || nearMiss(folded, v) {
			if match != "" && match != v {
				return ""
			}
			match = v
		}
	}
	return match
}

// nearMiss allows a single dropped or appended final character, which
// covers the typos a planner actually produces ("virid", "mbds").
func nearMiss(got, want string) bool {
	if len(got) < 3 {
		return false
	}
	return strings.HasPrefix(want, got) && len(want) == len(got)+1 ||
		strings.HasPrefix(got, want) && len(got) == len(want)+1
}
