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
	"errors"
	"strings"
	"testing"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

type stubClient struct {
	response string
	err      error
	prompt   string
	calls    int
}

func (s *stubClient) Generate(_ context.Context, prompt string, _ GenerationParams) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.response, s.err
}

func (s *stubClient) Chat(_ context.Context, _ []datatypes.Message, _ GenerationParams) (string, error) {
	s.calls++
	return s.response, s.err
}

func TestParsePlan_PlainJSON(t *testing.T) {
	plan, err := parsePlan(`{"calls": [{"tool": "functional_boxplot", "args": {"colormap": "plasma"}}], "reply": "Done."}`)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(plan.Calls) != 1 || plan.Calls[0].Tool != "functional_boxplot" {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.Calls[0].Args["colormap"] != "plasma" {
		t.Errorf("args = %v", plan.Calls[0].Args)
	}
}

func TestParsePlan_MarkdownFences(t *testing.T) {
	response := "```json\n{\"calls\": [], \"reply\": \"Nothing to do.\"}\n```"
	plan, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if plan.Reply != "Nothing to do." {
		t.Errorf("reply = %q", plan.Reply)
	}
}

func TestParsePlan_LeadingProse(t *testing.T) {
	response := `Here is the plan you asked for:
{"calls": [{"tool": "band_depth"}], "reply": "Computing depths."}`
	plan, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(plan.Calls) != 1 || plan.Calls[0].Tool != "band_depth" {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestParsePlan_NoJSON(t *testing.T) {
	if _, err := parsePlan("I cannot help with that."); err == nil {
		t.Error("expected an error for a response without JSON")
	}
}

func TestParsePlan_UnnamedCall(t *testing.T) {
	if _, err := parsePlan(`{"calls": [{"args": {}}], "reply": "x"}`); err == nil {
		t.Error("expected an error for a call without a tool name")
	}
}

func TestPlanner_PromptCarriesToolsAndContext(t *testing.T) {
	stub := &stubClient{response: `{"calls": [], "reply": "ok"}`}
	p := NewPlanner(stub)

	summary := datatypes.ContextSummary{SessionID: "s1", TurnCount: 3}
	schemas := []ToolSchema{
		{Name: "zeta_tool", Description: "last"},
		{Name: "alpha_tool", Description: "first"},
	}
	if _, err := p.Plan(context.Background(), "show me a boxplot", summary, schemas); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !strings.Contains(stub.prompt, "show me a boxplot") {
		t.Error("prompt should carry the utterance")
	}
	if !strings.Contains(stub.prompt, "alpha_tool") || !strings.Contains(stub.prompt, "zeta_tool") {
		t.Error("prompt should list every tool schema")
	}
	if strings.Index(stub.prompt, "alpha_tool") > strings.Index(stub.prompt, "zeta_tool") {
		t.Error("tool schemas should be listed in name order")
	}
	if !strings.Contains(stub.prompt, `"s1"`) {
		t.Error("prompt should carry the session context")
	}
}

func TestPlanner_BackendError(t *testing.T) {
	stub := &stubClient{err: errors.New("connection refused")}
	p := NewPlanner(stub)

	_, err := p.Plan(context.Background(), "anything", datatypes.ContextSummary{}, nil)
	if err == nil {
		t.Fatal("expected the backend error to propagate")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error %q should wrap the backend failure", err)
	}
}

func TestRateLimitedClient_PassesThrough(t *testing.T) {
	stub := &stubClient{response: "hello"}
	rl := NewRateLimitedClient(stub, 100, 10)

	got, err := rl.Generate(context.Background(), "hi", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "hello" || stub.calls != 1 {
		t.Errorf("got %q after %d calls", got, stub.calls)
	}
}

func TestRateLimitedClient_CancelledContext(t *testing.T) {
	stub := &stubClient{response: "hello"}
	// Zero burst at a tiny rate forces Wait to block.
	rl := NewRateLimitedClient(stub, 0.0001, 1)
	if _, err := rl.Generate(context.Background(), "warmup", GenerationParams{}); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rl.Generate(ctx, "hi", GenerationParams{}); err == nil {
		t.Error("expected a context error while rate limited")
	}
}
