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
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ContourAI/ContourChat/services/llm"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/ContourAI/ContourChat/services/tools"
)

// =============================================================================
// Test Fixtures
// =============================================================================

type plannerStub struct {
	plan  *llm.Plan
	err   error
	calls int

	lastUtterance string
	lastSummary   datatypes.ContextSummary
	lastSchemas   []llm.ToolSchema
}

func (p *plannerStub) Plan(_ context.Context, utterance string, summary datatypes.ContextSummary,
	schemas []llm.ToolSchema) (*llm.Plan, error) {
	p.calls++
	p.lastUtterance = utterance
	p.lastSummary = summary
	p.lastSchemas = schemas
	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	mgr := NewManager(ManagerConfig{GateWriter: io.Discard})
	return mgr.CreateWithID("sess-test")
}

func withVisualization(sess *Session) {
	sess.State.LastVisualization = &datatypes.Visualization{
		ToolName: "functional_boxplot",
		Parameters: map[string]any{
			"colormap":    "viridis",
			"percentiles": []float64{50},
		},
		RenderedAt: time.Now(),
	}
}

// plotTool returns a registry with one visualization tool that records the
// arguments of its last invocation.
func plotTool(captured *map[string]any) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name:   "functional_boxplot",
		Writes: []string{tools.FieldVisualization},
		Run: func(_ context.Context, args map[string]any, _ *datatypes.SessionState) *tools.Result {
			*captured = args
			return &tools.Result{
				Status:  tools.StatusSuccess,
				Message: "rendered",
				Visualization: &datatypes.Visualization{
					ToolName:   "functional_boxplot",
					Parameters: args,
					RenderedAt: time.Now(),
				},
			}
		},
	})
	return reg
}

// =============================================================================
// Fast Path
// =============================================================================

func TestEngine_FastPathMergesAndReinvokes(t *testing.T) {
	var got map[string]any
	planner := &plannerStub{}
	eng := NewEngine(EngineConfig{Registry: plotTool(&got), Planner: planner})

	sess := newTestSession(t)
	withVisualization(sess)

	resp := eng.RunTurn(context.Background(), sess, "colormap plasma")

	if resp.Path != "fast" {
		t.Fatalf("path = %q, want fast", resp.Path)
	}
	if planner.calls != 0 {
		t.Errorf("language backend consulted %d times on the fast path", planner.calls)
	}
	if got["colormap"] != "plasma" {
		t.Errorf("colormap = %v, want plasma", got["colormap"])
	}
	if _, ok := got["percentiles"]; !ok {
		t.Error("unchanged parameter percentiles was dropped from the merged set")
	}
	if sess.State.LastVisualization.Parameters["colormap"] != "plasma" {
		t.Error("session visualization not updated after fast path")
	}
	if resp.Failed {
		t.Error("fast path reported failure")
	}
	if sess.State.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", sess.State.TurnCount)
	}
}

func TestEngine_NoOpWithoutVisualization(t *testing.T) {
	var got map[string]any
	planner := &plannerStub{}
	eng := NewEngine(EngineConfig{Registry: plotTool(&got), Planner: planner})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "colormap plasma")

	if resp.Path != "noop" {
		t.Fatalf("path = %q, want noop", resp.Path)
	}
	if planner.calls != 0 {
		t.Error("language backend consulted on a noop turn")
	}
	if got != nil {
		t.Error("tool invoked on a noop turn")
	}
	if sess.Errors.Len() != 0 {
		t.Errorf("noop turn recorded %d errors", sess.Errors.Len())
	}
	if resp.Failed {
		t.Error("noop turn reported failure")
	}
	if sess.State.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", sess.State.TurnCount)
	}
	if resp.Reply == "" {
		t.Error("noop turn produced no reply")
	}
}

// =============================================================================
// Slow Path
// =============================================================================

func TestEngine_SlowPathShortCircuits(t *testing.T) {
	var ranThird bool
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name: "first",
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			return &tools.Result{Status: tools.StatusSuccess, Message: "ok"}
		},
	})
	reg.Register(&tools.Spec{
		Name: "second",
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			return tools.Errorf(`unknown colormap "sunset"`, "invalid_value", "ValueError: unknown colormap")
		},
	})
	reg.Register(&tools.Spec{
		Name: "third",
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			ranThird = true
			return &tools.Result{Status: tools.StatusSuccess, Message: "ok"}
		},
	})

	planner := &plannerStub{plan: &llm.Plan{
		Calls: []llm.ToolCall{{Tool: "first"}, {Tool: "second"}, {Tool: "third"}},
	}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "do all three things")

	if resp.Path != "slow" {
		t.Fatalf("path = %q, want slow", resp.Path)
	}
	if !resp.Failed {
		t.Fatal("turn with a failing call did not report failure")
	}
	if ranThird {
		t.Error("call after the failure still ran")
	}

	want := []string{"success", "error", "skipped"}
	if len(resp.Tools) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(resp.Tools), len(want))
	}
	for i, status := range want {
		if resp.Tools[i].Status != status {
			t.Errorf("outcome[%d].Status = %q, want %q", i, resp.Tools[i].Status, status)
		}
	}
	if resp.Tools[1].ErrorID == nil {
		t.Error("failed outcome carries no error id")
	}
	if sess.Errors.Len() != 1 {
		t.Errorf("tracker holds %d entries, want 1", sess.Errors.Len())
	}
	last, _ := sess.Errors.Last()
	if last.Kind != errtrack.KindInvalidValue {
		t.Errorf("recorded kind = %q, want %q", last.Kind, errtrack.KindInvalidValue)
	}
}

func TestEngine_PreconditionFailureSkipsRun(t *testing.T) {
	var ran bool
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name:  "generate_report",
		Reads: []string{tools.FieldStatistics},
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			ran = true
			return &tools.Result{Status: tools.StatusSuccess, Message: "ok"}
		},
	})
	planner := &plannerStub{plan: &llm.Plan{Calls: []llm.ToolCall{{Tool: "generate_report"}}}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "write me a report")

	if ran {
		t.Error("tool ran despite a missing precondition")
	}
	if !resp.Failed {
		t.Fatal("missing precondition did not fail the turn")
	}
	last, ok := sess.Errors.Last()
	if !ok {
		t.Fatal("no error recorded for the synthesized failure")
	}
	if last.Kind != errtrack.KindMissingDependency {
		t.Errorf("kind = %q, want %q", last.Kind, errtrack.KindMissingDependency)
	}
}

func TestEngine_UnknownPlannedTool(t *testing.T) {
	planner := &plannerStub{plan: &llm.Plan{Calls: []llm.ToolCall{{Tool: "teleport"}}}}
	eng := NewEngine(EngineConfig{Registry: tools.NewRegistry(), Planner: planner})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "teleport the data")

	if !resp.Failed {
		t.Fatal("unknown tool did not fail the turn")
	}
	last, _ := sess.Errors.Last()
	if last.Kind != errtrack.KindMissingResource {
		t.Errorf("kind = %q, want %q", last.Kind, errtrack.KindMissingResource)
	}
}

func TestEngine_NilPlannerFailsSlowPath(t *testing.T) {
	eng := NewEngine(EngineConfig{Registry: tools.NewRegistry()})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "show me something fancy")

	if resp.Path != "slow" {
		t.Fatalf("path = %q, want slow", resp.Path)
	}
	if !resp.Failed {
		t.Fatal("turn without a backend did not report failure")
	}
	if sess.Errors.Len() != 1 {
		t.Errorf("tracker holds %d entries, want 1", sess.Errors.Len())
	}
}

func TestEngine_EmptyPlanIsConversational(t *testing.T) {
	planner := &plannerStub{plan: &llm.Plan{Reply: "Band depth ranks ensemble members by centrality."}}
	eng := NewEngine(EngineConfig{Registry: tools.NewRegistry(), Planner: planner})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "what is band depth?")

	if resp.Failed {
		t.Fatal("conversational turn reported failure")
	}
	if len(resp.Tools) != 0 {
		t.Errorf("conversational turn produced %d tool outcomes", len(resp.Tools))
	}
	if resp.Reply != planner.plan.Reply {
		t.Errorf("reply = %q, want the planner's reply", resp.Reply)
	}
}

func TestEngine_PlannerSeesContextAndSchemas(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name:        "band_depth",
		Description: "ranks members by centrality",
		Params:      []tools.ParamSpec{{Name: "method", Type: "string", Enum: []string{"mbd", "bd2"}}},
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			return &tools.Result{Status: tools.StatusSuccess, Message: "ok"}
		},
	})
	planner := &plannerStub{plan: &llm.Plan{}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner})

	sess := newTestSession(t)
	sess.State.DebugMode = true
	eng.RunTurn(context.Background(), sess, "rank the members")

	if planner.lastUtterance != "rank the members" {
		t.Errorf("utterance = %q", planner.lastUtterance)
	}
	if !planner.lastSummary.DebugMode {
		t.Error("summary does not reflect debug mode")
	}
	if len(planner.lastSchemas) != 1 || planner.lastSchemas[0].Name != "band_depth" {
		t.Fatalf("schemas = %+v", planner.lastSchemas)
	}
	if len(planner.lastSchemas[0].Params) != 1 || planner.lastSchemas[0].Params[0].Name != "method" {
		t.Errorf("params = %+v", planner.lastSchemas[0].Params)
	}
}

// =============================================================================
// Turn Accounting
// =============================================================================

func TestEngine_TurnCountIncrementsOncePerOutcome(t *testing.T) {
	var got map[string]any
	eng := NewEngine(EngineConfig{Registry: plotTool(&got)}) // nil planner

	sess := newTestSession(t)

	eng.RunTurn(context.Background(), sess, "colormap plasma") // noop
	if sess.State.TurnCount != 1 {
		t.Fatalf("after noop: turn count = %d, want 1", sess.State.TurnCount)
	}

	withVisualization(sess)
	eng.RunTurn(context.Background(), sess, "width 3") // fast
	if sess.State.TurnCount != 2 {
		t.Fatalf("after fast: turn count = %d, want 2", sess.State.TurnCount)
	}

	eng.RunTurn(context.Background(), sess, "tell me a story") // slow, fails
	if sess.State.TurnCount != 3 {
		t.Fatalf("after failed slow: turn count = %d, want 3", sess.State.TurnCount)
	}
}

func TestEngine_LastActiveAdvances(t *testing.T) {
	var got map[string]any
	eng := NewEngine(EngineConfig{Registry: plotTool(&got)})

	sess := newTestSession(t)
	sess.State.LastActive = time.Now().Add(-time.Hour)

	before := sess.State.LastActive
	eng.RunTurn(context.Background(), sess, "colormap plasma")
	if !sess.State.LastActive.After(before) {
		t.Error("LastActive not advanced by the turn")
	}
}

// =============================================================================
// Debug Mode
// =============================================================================

func TestEngine_DebugModeGatesHints(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name: "boxplot",
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			return tools.Errorf(`unknown colormap "sunset"`, "invalid_value", "")
		},
	})
	planner := &plannerStub{plan: &llm.Plan{Calls: []llm.ToolCall{{Tool: "boxplot"}}}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner})

	sess := newTestSession(t)

	resp := eng.RunTurn(context.Background(), sess, "plot it in sunset")
	if strings.Contains(resp.Reply, "Hint:") {
		t.Error("hint surfaced with debug mode off")
	}

	sess.State.DebugMode = true
	resp = eng.RunTurn(context.Background(), sess, "plot it in sunset")
	if !strings.Contains(resp.Reply, "Hint:") {
		t.Errorf("no hint with debug mode on; reply = %q", resp.Reply)
	}
	if !strings.Contains(resp.Reply, "sunset") {
		t.Error("debug reply does not surface the rejected value")
	}
}

// =============================================================================
// Auto-Fix
// =============================================================================

func TestEngine_AutoFixRetriesAndMarks(t *testing.T) {
	var invocations []string
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name: "boxplot",
		Run: func(_ context.Context, args map[string]any, _ *datatypes.SessionState) *tools.Result {
			cm, _ := args["colormap"].(string)
			invocations = append(invocations, cm)
			if cm != "viridis" {
				return tools.Errorf(`unknown colormap "virids"`, "invalid_value", "")
			}
			return &tools.Result{Status: tools.StatusSuccess, Message: "rendered"}
		},
	})
	planner := &plannerStub{plan: &llm.Plan{
		Calls: []llm.ToolCall{{Tool: "boxplot", Args: map[string]any{"colormap": "virids"}}},
		Reply: "Here is the plot.",
	}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner, AutoFix: true})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "plot it in virids")

	if resp.Failed {
		t.Fatalf("auto-fixable turn failed; reply = %q", resp.Reply)
	}
	if len(invocations) != 2 {
		t.Fatalf("tool ran %d times, want 2 (original plus retry)", len(invocations))
	}
	if invocations[1] != "viridis" {
		t.Errorf("retry colormap = %q, want viridis", invocations[1])
	}
	last, ok := sess.Errors.Last()
	if !ok {
		t.Fatal("auto-fixed failure left no history entry")
	}
	if !last.AutoFixed {
		t.Error("history entry not marked auto-fixed")
	}
}

func TestEngine_AutoFixDisabledByDefault(t *testing.T) {
	var runs int
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name: "boxplot",
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			runs++
			return tools.Errorf(`unknown colormap "virids"`, "invalid_value", "")
		},
	})
	planner := &plannerStub{plan: &llm.Plan{Calls: []llm.ToolCall{{Tool: "boxplot"}}}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner})

	sess := newTestSession(t)
	resp := eng.RunTurn(context.Background(), sess, "plot it")

	if runs != 1 {
		t.Errorf("tool ran %d times with auto-fix off, want 1", runs)
	}
	if !resp.Failed {
		t.Error("turn did not fail with auto-fix off")
	}
	last, _ := sess.Errors.Last()
	if last.AutoFixed {
		t.Error("entry marked auto-fixed without a fix")
	}
}

// =============================================================================
// Events
// =============================================================================

func TestEngine_EventStream(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.Spec{
		Name: "first",
		Run: func(_ context.Context, _ map[string]any, _ *datatypes.SessionState) *tools.Result {
			return &tools.Result{Status: tools.StatusSuccess, Message: "ok"}
		},
	})
	planner := &plannerStub{plan: &llm.Plan{Calls: []llm.ToolCall{{Tool: "first"}}, Reply: "done"}}
	eng := NewEngine(EngineConfig{Registry: reg, Planner: planner})

	sess := newTestSession(t)
	var stages []TurnStage
	eng.RunTurnWithEvents(context.Background(), sess, "run the first step", func(ev TurnEvent) {
		stages = append(stages, ev.Stage)
	})

	want := []TurnStage{StageParsing, StagePlanning, StageToolRunning, StageToolOK, StageComplete}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %q, want %q", i, stages[i], want[i])
		}
	}
}
