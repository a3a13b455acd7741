// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

// =============================================================================
// Planner Types
// =============================================================================

// ParamSchema describes one tool parameter for the planning prompt.
type ParamSchema struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ToolSchema describes one tool for the planning prompt. The orchestrator
// derives these from its registry; this package never sees tool
// implementations.
type ToolSchema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Params      []ParamSchema `json:"params,omitempty"`
}

// ToolCall is one planned invocation.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// Plan is the model's answer to an utterance: zero or more ordered tool
// calls plus a user-facing reply.
type Plan struct {
	Calls []ToolCall `json:"calls"`
	Reply string     `json:"reply"`
}

// Planner asks an LLM backend to turn an utterance into a Plan.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type Planner struct {
	client LLMClient
	params GenerationParams
}

// NewPlanner wraps a backend client. Planning runs at low temperature so
// repeated utterances map to stable plans.
func NewPlanner(client LLMClient) *Planner {
	temp := float32(0.1)
	maxTokens := 1024
	return &Planner{
		client: client,
		params: GenerationParams{Temperature: &temp, MaxTokens: &maxTokens},
	}
}

// Generate lets the planner double as the report tool's prose generator.
func (p *Planner) Generate(ctx context.Context, prompt string) (string, error) {
	return p.client.Generate(ctx, prompt, GenerationParams{})
}

// =============================================================================
// Planning
// =============================================================================

// Plan builds the planning prompt from the utterance, the session context
// and the tool schemas, calls the backend and parses the response.
//
// # Outputs
//
//   - *Plan: The parsed plan. Never nil on success; Calls may be empty
//     when the model answers conversationally.
//   - error: Backend failures and unparseable responses.
func (p *Planner) Plan(ctx context.Context, utterance string,
	summary datatypes.ContextSummary, schemas []ToolSchema) (*Plan, error) {

	prompt, err := buildPlanPrompt(utterance, summary, schemas)
	if err != nil {
		return nil, err
	}

	raw, err := p.client.Generate(ctx, prompt, p.params)
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}

	plan, err := parsePlan(raw)
	if err != nil {
		slog.Warn("Planner response was not parseable", "error", err)
		return nil, err
	}
	return plan, nil
}

func buildPlanPrompt(utterance string, summary datatypes.ContextSummary,
	schemas []ToolSchema) (string, error) {

	sorted := append([]ToolSchema(nil), schemas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	toolsJSON, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling tool schemas: %w", err)
	}
	contextJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling session context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You orchestrate an ensemble visualization toolkit. ")
	sb.WriteString("Turn the user's request into an ordered list of tool calls.\n\n")
	sb.WriteString("Available tools:\n")
	sb.Write(toolsJSON)
	sb.WriteString("\n\nSession context:\n")
	sb.Write(contextJSON)
	sb.WriteString("\n\nUser request: ")
	sb.WriteString(utterance)
	sb.WriteString("\n\nRespond with a single JSON object, nothing else:\n")
	sb.WriteString(`{"calls": [{"tool": "<name>", "args": {}}], "reply": "<one sentence for the user>"}`)
	sb.WriteString("\nUse an empty calls list when no tool applies and answer in reply.\n")
	return sb.String(), nil
}

// parsePlan extracts the JSON plan from a model response. Models wrap
// JSON in markdown fences or lead with prose, so scan for the outermost
// braces rather than unmarshaling the raw response.
func parsePlan(response string) (*Plan, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in planner response")
	}
	jsonStr := cleaned[start : end+1]

	var plan Plan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	for i, call := range plan.Calls {
		if call.Tool == "" {
			return nil, fmt.Errorf("plan call %d has no tool name", i)
		}
	}
	return &plan, nil
}
