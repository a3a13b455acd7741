// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"sync"
)

// Gate filters secondary chatter out of a conversation.
//
// # Description
//
// Primary replies always reach the user; progress notes, tool-by-tool
// narration and diagnostic hints only pass when the session is verbose or
// the caller forces them through. Each session owns its gate so one user's
// verbosity toggle never affects another's output.
//
// # Thread Safety
//
// Safe for concurrent use; writes are serialized.
type Gate struct {
	mu      sync.Mutex
	w       io.Writer
	verbose func() bool
	styled  bool
}

// NewGate builds a gate over a writer.
//
// # Inputs
//
//   - w: Destination for emitted lines. Must be non-nil.
//   - verbose: Reports the session's verbose flag at emit time, so flag
//     flips take effect mid-conversation. A nil func means never verbose.
func NewGate(w io.Writer, verbose func() bool) *Gate {
	if verbose == nil {
		verbose = func() bool { return false }
	}
	return &Gate{w: w, verbose: verbose, styled: ShouldShowColors()}
}

// Emit writes one primary line. Primary output always passes the gate.
func (g *Gate) Emit(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fmt.Fprintln(g.w, text)
}

// EmitSecondary writes one secondary line: shown when the session is
// verbose or force is set, silently dropped otherwise.
func (g *Gate) EmitSecondary(text string, force bool) {
	if !force && !g.verbose() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.styled {
		text = Styles.Muted.Render(text)
	}
	fmt.Fprintln(g.w, text)
}

// EmitSecondaryf is EmitSecondary with formatting.
func (g *Gate) EmitSecondaryf(force bool, format string, args ...any) {
	g.EmitSecondary(fmt.Sprintf(format, args...), force)
}
