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
	"fmt"
	"sort"
	"sync"
)

// Registry maps logical tool names to Specs.
//
// # Description
//
// The orchestrator resolves planner-selected names against the registry;
// the planner prompt is built from the registered specs. Registration
// overwrites any previous spec for the same name.
//
// # Thread Safety
//
// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry creates an empty registry. Use Register to add tools.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*Spec),
	}
}

// Register adds a tool spec.
//
// Specs with an empty name or a nil Run func are ignored rather than
// rejected loudly; the orchestrator treats an unknown name at execution
// time as a tool failure, which surfaces the misconfiguration anyway.
func (r *Registry) Register(spec *Spec) {
	if spec == nil || spec.Name == "" || spec.Run == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.Name] = spec
}

// Get returns the spec registered under name.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	return spec, ok
}

// MustGet returns the spec or panics. Use only at wiring time when the
// tool is known to be registered.
func (r *Registry) MustGet(name string) *Spec {
	spec, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("no tool registered as %q", name))
	}
	return spec
}

// Names returns all registered tool names, sorted for deterministic
// prompt construction.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the registered specs in name order.
func (r *Registry) Specs() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Spec, 0, len(names))
	for _, name := range names {
		out = append(out, r.specs[name])
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
