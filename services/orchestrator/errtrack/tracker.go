// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errtrack records tool and backend failures for later inspection.
//
// # Description
//
// Every failure the orchestrator observes (tool errors, backend errors,
// precondition violations) lands here as a structured Entry. The history
// is bounded: the oldest entry is dropped silently when the bound is
// exceeded. Entry ids are strictly increasing for the life of the tracker
// and are never recycled, even across evictions, so "/error 7" keeps
// meaning the same failure after older entries have been evicted.
//
// Entries are immutable after creation with one exception: the AutoFixed
// flag has a single one-way false→true transition via MarkAutoFixed. The
// tracker hands out copies, never interior pointers, to keep that the only
// mutation path.
//
// # Thread Safety
//
// Tracker is safe for concurrent use. In practice the owning session
// serializes turns, but the inspection endpoints may read concurrently.
package errtrack

import (
	"sync"
	"time"
)

// DefaultMaxHistory is the default bound on retained entries.
const DefaultMaxHistory = 20

// =============================================================================
// Entry
// =============================================================================

// Entry is one recorded failure.
type Entry struct {
	// ID is the tracker-assigned identifier, strictly increasing from 1.
	ID int `json:"id"`

	// Timestamp is when the failure was recorded.
	Timestamp time.Time `json:"timestamp"`

	// ToolName is the tool (or "backend") that failed.
	ToolName string `json:"tool_name"`

	// Kind is the classified error category (see interpret.go).
	Kind Kind `json:"kind"`

	// Message is the terse failure description.
	Message string `json:"message"`

	// RawTrace is the full diagnostic trace. Always recorded; only
	// surfaced to the user in debug mode.
	RawTrace string `json:"raw_trace"`

	// UserMessage is the text shown to the user at the time of failure.
	UserMessage string `json:"user_message"`

	// AutoFixed marks an error later resolved by a same-tool retry.
	// The only permitted post-creation transition is false→true.
	AutoFixed bool `json:"auto_fixed"`

	// Context carries optional structured details (arguments, dataset
	// ids). May be nil.
	Context map[string]any `json:"context,omitempty"`
}

// =============================================================================
// Tracker
// =============================================================================

// Tracker is the bounded, append-only failure history for one session.
type Tracker struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int
	max     int
}

// NewTracker creates a tracker bounded to max entries.
//
// A max of zero or below falls back to DefaultMaxHistory.
func NewTracker(max int) *Tracker {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &Tracker{
		nextID: 1,
		max:    max,
	}
}

// RecordOptions carries the optional Record parameters.
type RecordOptions struct {
	AutoFixed bool
	Context   map[string]any
}

// Record appends a new entry and returns a copy of it.
//
// # Description
//
// Assigns the next id, stamps the current time, and evicts the oldest
// entry if the bound would be exceeded. Eviction is silent: nothing is
// reported, the id is simply gone from the surviving window.
//
// # Inputs
//
//   - toolName: The failing tool, or "backend" for planner failures.
//   - kind: Classified category from Classify.
//   - message: Terse description.
//   - rawTrace: Full diagnostic trace (recorded regardless of debug mode).
//   - userMessage: What was shown to the user.
//   - opts: Optional auto-fixed flag and context mapping. May be nil.
//
// # Outputs
//
//   - Entry: A copy of the recorded entry.
func (t *Tracker) Record(toolName string, kind Kind, message, rawTrace, userMessage string, opts *RecordOptions) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{
		ID:          t.nextID,
		Timestamp:   time.Now(),
		ToolName:    toolName,
		Kind:        kind,
		Message:     message,
		RawTrace:    rawTrace,
		UserMessage: userMessage,
	}
	if opts != nil {
		e.AutoFixed = opts.AutoFixed
		if len(opts.Context) > 0 {
			e.Context = make(map[string]any, len(opts.Context))
			for k, v := range opts.Context {
				e.Context[k] = v
			}
		}
	}
	t.nextID++

	t.entries = append(t.entries, e)
	if len(t.entries) > t.max {
		// FIFO eviction, oldest first. Copy down rather than reslice so
		// the evicted entry does not pin the backing array.
		copy(t.entries, t.entries[1:])
		t.entries = t.entries[:t.max]
	}
	return e
}

// Get returns the entry with the given id, if it is still in the window.
func (t *Tracker) Get(id int) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Last returns the most recently recorded entry.
func (t *Tracker) Last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// List returns the surviving entries in ascending id order.
func (t *Tracker) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// MarkAutoFixed flips the entry's AutoFixed flag.
//
// Best-effort by contract: marking an evicted or never-assigned id is a
// no-op, never an error. Returns true when an entry was updated.
func (t *Tracker) MarkAutoFixed(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ID == id {
			t.entries[i].AutoFixed = true
			return true
		}
	}
	return false
}
