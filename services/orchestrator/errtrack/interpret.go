// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the optional interpretation layer: classification of
// raw failures into a small fixed set of categories, plus per-category
// hint templates surfaced only when detailed diagnostics is on.

package errtrack

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Error Kinds
// =============================================================================

// Kind is the classified failure category.
type Kind string

const (
	// KindInvalidValue marks an invalid enumerated value, e.g. an
	// unknown colormap or depth method.
	KindInvalidValue Kind = "invalid_value"

	// KindShapeMismatch marks array dimension/shape disagreements.
	KindShapeMismatch Kind = "shape_mismatch"

	// KindMissingResource marks references to datasets or files that do
	// not exist.
	KindMissingResource Kind = "missing_resource"

	// KindMissingDependency marks sequencing violations: a tool needed
	// output another tool has not produced yet.
	KindMissingDependency Kind = "missing_dependency"

	// KindUncategorized is everything else.
	KindUncategorized Kind = "uncategorized"
)

// =============================================================================
// Classification
// =============================================================================

// quotedValue extracts the first single- or double-quoted token from a
// message, used to name the offending value in hints. Nothing beyond this
// simple extraction is ever synthesized from free text.
var quotedValue = regexp.MustCompile(`['"]([^'"]+)['"]`)

// classifyPatterns maps message substrings to kinds, checked in order.
var classifyPatterns = []struct {
	substr string
	kind   Kind
}{
	{"invalid value", KindInvalidValue},
	{"unknown colormap", KindInvalidValue},
	{"unknown method", KindInvalidValue},
	{"not a valid", KindInvalidValue},
	{"shape mismatch", KindShapeMismatch},
	{"dimension mismatch", KindShapeMismatch},
	{"unequal lengths", KindShapeMismatch},
	{"no dataset", KindMissingResource},
	{"not found", KindMissingResource},
	{"no such", KindMissingResource},
	{"requires statistics", KindMissingDependency},
	{"must run", KindMissingDependency},
	{"missing dependency", KindMissingDependency},
}

// Classify assigns a failure to one of the fixed categories.
//
// Classification is substring-based over the error message and raw trace;
// it never guesses beyond the listed patterns.
func Classify(err error, rawTrace string) Kind {
	if err == nil {
		return KindUncategorized
	}
	haystack := strings.ToLower(err.Error() + "\n" + rawTrace)
	for _, p := range classifyPatterns {
		if strings.Contains(haystack, p.substr) {
			return p.kind
		}
	}
	return KindUncategorized
}

// =============================================================================
// Hints
// =============================================================================

// Hint returns the human-readable per-category hint for a classified
// failure, or "" for KindUncategorized.
//
// # Description
//
// The hint is drawn from a fixed template per category; the only dynamic
// part is the offending value extracted (by simple quoting patterns) from
// the message. Callers attach the hint to the user message only when the
// session's detailed-diagnostics flag is set; recording is unaffected.
func Hint(kind Kind, err error) string {
	offending := ""
	if err != nil {
		if m := quotedValue.FindStringSubmatch(err.Error()); m != nil {
			offending = m[1]
		}
	}

	switch kind {
	case KindInvalidValue:
		if offending != "" {
			return fmt.Sprintf("hint: %q is not an accepted value for this parameter; ask for the available options", offending)
		}
		return "hint: one of the parameters has a value outside its accepted set; ask for the available options"
	case KindShapeMismatch:
		return "hint: the ensemble members disagree in shape; regenerate or reload the dataset so all members share dimensions"
	case KindMissingResource:
		if offending != "" {
			return fmt.Sprintf("hint: %q does not exist in this session; generate or load a dataset first", offending)
		}
		return "hint: the referenced dataset does not exist in this session; generate or load one first"
	case KindMissingDependency:
		return "hint: this tool depends on output another tool has not produced yet; run the statistics step first"
	default:
		return ""
	}
}
