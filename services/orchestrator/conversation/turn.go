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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ContourAI/ContourChat/services/llm"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/ContourAI/ContourChat/services/orchestrator/fastpath"
	"github.com/ContourAI/ContourChat/services/orchestrator/observability"
	"github.com/ContourAI/ContourChat/services/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var turnTracer = otel.Tracer("contour.orchestrator.turn")

// =============================================================================
// Turn Stages
// =============================================================================

// TurnStage labels the phases a turn moves through. Stages back the
// websocket progress stream and test assertions on turn flow.
type TurnStage string

const (
	StageParsing     TurnStage = "parsing"
	StageFastPath    TurnStage = "fast_path"
	StageNoOp        TurnStage = "noop"
	StagePlanning    TurnStage = "planning"
	StageToolRunning TurnStage = "tool_running"
	StageToolOK      TurnStage = "tool_succeeded"
	StageToolFailed  TurnStage = "tool_failed"
	StageComplete    TurnStage = "complete"
)

// TurnEvent is one progress notification within a turn.
type TurnEvent struct {
	Stage  TurnStage `json:"stage"`
	Tool   string    `json:"tool,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// =============================================================================
// Planner Contract
// =============================================================================

// Planner is the slow path's language backend.
// *llm.Planner satisfies it; tests substitute canned plans.
type Planner interface {
	Plan(ctx context.Context, utterance string, summary datatypes.ContextSummary,
		schemas []llm.ToolSchema) (*llm.Plan, error)
}

// =============================================================================
// Turn Engine
// =============================================================================

// Engine runs conversation turns.
//
// # Description
//
// Every utterance takes exactly one of three routes: the fast path (a
// deterministic parameter command applied to the active visualization with
// no language backend involved), a no-op (a parameter command with nothing
// to apply it to), or the slow path (the planner proposes ordered tool
// calls which run sequentially and stop at the first failure). Session
// state only changes through a tool's declared writes, and only on
// success.
//
// # Thread Safety
//
// Safe for concurrent use across sessions; turns within one session are
// serialized by the session's mutex.
type Engine struct {
	registry *tools.Registry
	planner  Planner
	metrics  *observability.ChatMetrics

	// autoFix enables the single corrected-parameter retry on
	// categorized invalid-value failures.
	autoFix bool
}

// EngineConfig configures the turn engine.
type EngineConfig struct {
	Registry *tools.Registry
	Planner  Planner // nil disables the slow path
	Metrics  *observability.ChatMetrics
	AutoFix  bool
}

// NewEngine builds a turn engine. Registry must be non-nil.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		registry: cfg.Registry,
		planner:  cfg.Planner,
		metrics:  cfg.Metrics,
		autoFix:  cfg.AutoFix,
	}
}

// RunTurn processes one utterance against a session.
func (e *Engine) RunTurn(ctx context.Context, sess *Session, utterance string) *datatypes.ChatResponse {
	return e.RunTurnWithEvents(ctx, sess, utterance, nil)
}

// RunTurnWithEvents is RunTurn with a progress callback. emit may be nil.
//
// # Outputs
//
//   - *datatypes.ChatResponse: The completed turn. Never nil; turn-level
//     failures are reported inside the response, not as an error.
func (e *Engine) RunTurnWithEvents(ctx context.Context, sess *Session, utterance string,
	emit func(TurnEvent)) *datatypes.ChatResponse {

	ctx, span := turnTracer.Start(ctx, "Engine.RunTurn")
	defer span.End()

	if emit == nil {
		emit = func(TurnEvent) {}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.State
	state.TurnCount++
	started := time.Now()

	resp := &datatypes.ChatResponse{
		SessionID: state.ID,
		Turn:      state.TurnCount,
	}

	defer func() {
		state.LastActive = time.Now()
		resp.Context = sess.Summarize()
		span.SetAttributes(
			attribute.String("turn.path", resp.Path),
			attribute.Bool("turn.failed", resp.Failed),
		)
		if e.metrics != nil {
			e.metrics.RecordTurn(resp.Path, !resp.Failed)
			e.metrics.RecordTurnDuration(resp.Path, time.Since(started).Seconds())
		}
		emit(TurnEvent{Stage: StageComplete})
	}()

	emit(TurnEvent{Stage: StageParsing})
	if cmd, ok := fastpath.Parse(utterance); ok {
		e.runFastPath(ctx, sess, cmd, resp, emit)
		return resp
	}

	e.runSlowPath(ctx, sess, utterance, resp, emit)
	return resp
}

// =============================================================================
// Fast Path
// =============================================================================

// runFastPath applies a parameter command to the active visualization by
// re-invoking its tool with the merged parameter set. No language backend
// is consulted.
func (e *Engine) runFastPath(ctx context.Context, sess *Session, cmd *fastpath.SimpleCommand,
	resp *datatypes.ChatResponse, emit func(TurnEvent)) {

	state := sess.State

	if state.LastVisualization == nil {
		resp.Path = "noop"
		resp.Reply = "There is no visualization to adjust yet. Ask for a plot first, for example \"show me a functional boxplot\"."
		emit(TurnEvent{Stage: StageNoOp})
		sess.Gate.EmitSecondary("parameter command ignored: no active visualization", false)
		return
	}

	resp.Path = "fast"
	toolName := state.LastVisualization.ToolName
	emit(TurnEvent{Stage: StageFastPath, Tool: toolName, Detail: cmd.Canonical()})

	merged := state.LastVisualization.Clone()
	for k, v := range cmd.Fields() {
		merged.Parameters[k] = v
	}

	spec, ok := e.registry.Get(toolName)
	if !ok {
		e.failTurn(sess, resp, toolName,
			fmt.Errorf("tool %q not found in registry", toolName), "", emit)
		return
	}

	result := e.invoke(ctx, spec, merged.Parameters, sess, resp, emit)
	if result == nil {
		return
	}

	resp.Reply = fmt.Sprintf("Updated the %s: %s.", strings.ReplaceAll(toolName, "_", " "), cmd.Canonical())
	sess.Gate.EmitSecondaryf(false, "fast path re-rendered %s with %d changed parameter(s)",
		toolName, cmd.FieldCount())
}

// =============================================================================
// Slow Path
// =============================================================================

func (e *Engine) runSlowPath(ctx context.Context, sess *Session, utterance string,
	resp *datatypes.ChatResponse, emit func(TurnEvent)) {

	resp.Path = "slow"
	state := sess.State

	if e.planner == nil {
		e.failTurn(sess, resp, "planner",
			errors.New("no language backend configured"), "", emit)
		return
	}

	emit(TurnEvent{Stage: StagePlanning})
	sess.Gate.EmitSecondary("consulting the language backend", false)

	planStart := time.Now()
	plan, err := e.planner.Plan(ctx, utterance, sess.Summarize(), e.schemas())
	if e.metrics != nil {
		e.metrics.RecordPlanLatency(time.Since(planStart).Seconds())
	}
	if err != nil {
		e.failTurn(sess, resp, "planner", err, "", emit)
		return
	}

	if len(plan.Calls) == 0 {
		resp.Reply = plan.Reply
		if resp.Reply == "" {
			resp.Reply = "Nothing to do for that request."
		}
		return
	}

	for i, call := range plan.Calls {
		spec, ok := e.registry.Get(call.Tool)
		if !ok {
			e.failTurn(sess, resp, call.Tool,
				fmt.Errorf("tool %q not found", call.Tool), "", emit)
			e.skipRemaining(plan.Calls[i+1:], resp)
			return
		}

		if missing := e.missingPrecondition(state, spec); missing != "" {
			// Synthesized failure: the tool never runs and no backend
			// call is made.
			e.failTurn(sess, resp, call.Tool,
				fmt.Errorf("missing dependency: %s is required before %s", missing, call.Tool), "", emit)
			e.skipRemaining(plan.Calls[i+1:], resp)
			return
		}

		emit(TurnEvent{Stage: StageToolRunning, Tool: call.Tool})
		sess.Gate.EmitSecondaryf(false, "running %s (%d/%d)", call.Tool, i+1, len(plan.Calls))

		if result := e.invoke(ctx, spec, call.Args, sess, resp, emit); result == nil {
			e.skipRemaining(plan.Calls[i+1:], resp)
			return
		}
	}

	resp.Reply = plan.Reply
	if resp.Reply == "" {
		last := resp.Tools[len(resp.Tools)-1]
		resp.Reply = "Done: " + last.Message
	}
}

func (e *Engine) skipRemaining(calls []llm.ToolCall, resp *datatypes.ChatResponse) {
	for _, call := range calls {
		resp.Tools = append(resp.Tools, datatypes.ToolOutcome{
			Tool:   call.Tool,
			Status: "skipped",
		})
		if e.metrics != nil {
			e.metrics.RecordToolCall(call.Tool, "skipped")
		}
	}
}

// schemas derives planner tool schemas from the registry.
func (e *Engine) schemas() []llm.ToolSchema {
	specs := e.registry.Specs()
	out := make([]llm.ToolSchema, 0, len(specs))
	for _, spec := range specs {
		schema := llm.ToolSchema{
			Name:        spec.Name,
			Description: spec.Description,
		}
		for _, p := range spec.Params {
			schema.Params = append(schema.Params, llm.ParamSchema{
				Name:        p.Name,
				Type:        p.Type,
				Required:    p.Required,
				Enum:        p.Enum,
				Description: p.Description,
			})
		}
		out = append(out, schema)
	}
	return out
}

// missingPrecondition reports the first declared read whose session field
// is absent, or "" when all preconditions hold.
func (e *Engine) missingPrecondition(state *datatypes.SessionState, spec *tools.Spec) string {
	for _, field := range spec.Reads {
		switch field {
		case tools.FieldData:
			if state.CurrentData == nil {
				return "a loaded dataset"
			}
		case tools.FieldVisualization:
			if state.LastVisualization == nil {
				return "an active visualization"
			}
		case tools.FieldStatistics:
			if state.Statistics == nil {
				return "computed statistics"
			}
		case tools.FieldReport:
			if state.Report == nil {
				return "a generated report"
			}
		}
	}
	return ""
}

// =============================================================================
// Tool Invocation
// =============================================================================

// invoke runs one tool, merges its declared writes on success and handles
// failure recording (including the optional auto-fix retry). Returns nil
// when the call failed and the turn should stop.
func (e *Engine) invoke(ctx context.Context, spec *tools.Spec, args map[string]any,
	sess *Session, resp *datatypes.ChatResponse, emit func(TurnEvent)) *tools.Result {

	state := sess.State
	result := spec.Run(ctx, args, state)

	if result.Status == tools.StatusError && e.autoFix {
		if fixed, fixedResult := e.tryAutoFix(ctx, sess, spec, args, result); fixed {
			result = fixedResult
		}
	}

	if result.Status != tools.StatusSuccess {
		e.failTool(sess, resp, spec.Name, result, emit)
		return nil
	}

	e.mergeWrites(state, spec, result)

	resp.Tools = append(resp.Tools, datatypes.ToolOutcome{
		Tool:    spec.Name,
		Status:  "success",
		Message: result.Message,
	})
	if e.metrics != nil {
		e.metrics.RecordToolCall(spec.Name, "success")
	}
	emit(TurnEvent{Stage: StageToolOK, Tool: spec.Name, Detail: result.Message})
	return result
}

// mergeWrites folds a successful result into session state, honoring the
// tool's declared writes. Undeclared writes are dropped.
func (e *Engine) mergeWrites(state *datatypes.SessionState, spec *tools.Spec, result *tools.Result) {
	if result.Data != nil && spec.WritesField(tools.FieldData) {
		state.CurrentData = result.Data
	}
	if result.Visualization != nil && spec.WritesField(tools.FieldVisualization) {
		state.LastVisualization = result.Visualization
	}
	if result.Statistics != nil && spec.WritesField(tools.FieldStatistics) {
		state.Statistics = result.Statistics
	}
	if result.Report != nil && spec.WritesField(tools.FieldReport) {
		state.Report = result.Report
	}
}

// =============================================================================
// Failure Handling
// =============================================================================

// failTool records a tool failure result into the session's history and
// closes out the turn's reply.
func (e *Engine) failTool(sess *Session, resp *datatypes.ChatResponse, toolName string,
	result *tools.Result, emit func(TurnEvent)) {

	err := errors.New(result.Message)
	e.recordFailure(sess, resp, toolName, err, result.RawTrace, emit)
}

// failTurn records a synthesized or backend failure that has no tool
// result envelope.
func (e *Engine) failTurn(sess *Session, resp *datatypes.ChatResponse, toolName string,
	err error, rawTrace string, emit func(TurnEvent)) {

	e.recordFailure(sess, resp, toolName, err, rawTrace, emit)
}

func (e *Engine) recordFailure(sess *Session, resp *datatypes.ChatResponse, toolName string,
	err error, rawTrace string, emit func(TurnEvent)) {

	state := sess.State
	kind := errtrack.Classify(err, rawTrace)
	userMsg := friendlyFailure(toolName, kind)

	entry := sess.Errors.Record(toolName, kind, err.Error(), rawTrace, userMsg, nil)
	if e.metrics != nil {
		e.metrics.RecordToolCall(toolName, "error")
		e.metrics.RecordErrorEntry(string(kind))
	}
	slog.Warn("Turn failed",
		"session_id", state.ID,
		"tool", toolName,
		"kind", kind,
		"error_id", entry.ID)

	id := entry.ID
	resp.Failed = true
	resp.Tools = append(resp.Tools, datatypes.ToolOutcome{
		Tool:    toolName,
		Status:  "error",
		Message: userMsg,
		ErrorID: &id,
	})

	reply := fmt.Sprintf("%s (error #%d; say \"/error %d\" for details)", userMsg, id, id)
	if state.DebugMode {
		if hint := errtrack.Hint(kind, err); hint != "" {
			reply += "\nHint: " + hint
		}
		reply += "\nDetail: " + err.Error()
	}
	resp.Reply = reply

	emit(TurnEvent{Stage: StageToolFailed, Tool: toolName, Detail: userMsg})
	sess.Gate.EmitSecondaryf(false, "%s failed: %s", toolName, err.Error())
}

// friendlyFailure phrases a failure for the user without leaking raw
// toolkit traces.
func friendlyFailure(toolName string, kind errtrack.Kind) string {
	tool := strings.ReplaceAll(toolName, "_", " ")
	switch kind {
	case errtrack.KindInvalidValue:
		return fmt.Sprintf("The %s step rejected one of the values you asked for.", tool)
	case errtrack.KindShapeMismatch:
		return fmt.Sprintf("The %s step could not handle the shape of the current data.", tool)
	case errtrack.KindMissingResource:
		return fmt.Sprintf("The %s step could not find what it needed.", tool)
	case errtrack.KindMissingDependency:
		return fmt.Sprintf("The %s step needs an earlier step to run first.", tool)
	default:
		return fmt.Sprintf("The %s step failed unexpectedly.", tool)
	}
}
