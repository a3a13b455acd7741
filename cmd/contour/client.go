// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

// =============================================================================
// API Client
// =============================================================================

// apiClient talks to the orchestrator's HTTP API.
//
// # Description
//
// apiClient wraps the /v1 endpoints the CLI needs: chat turns, session
// context, reports, flags and the error history. All methods accept a
// context for cancellation and return typed results or an *apiError for
// non-2xx responses.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying http.Client is shared.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// newAPIClient creates a client for the given orchestrator base URL.
// An empty apiKey sends no Authorization header.
func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// apiError carries a non-2xx response from the orchestrator.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("orchestrator returned %d: %s", e.Status, e.Message)
}

// =============================================================================
// Response Shapes
// =============================================================================

// errorDetail mirrors one entry from the /errors endpoints. RawTrace is
// only populated when the session has debug mode on.
type errorDetail struct {
	ID          int            `json:"id"`
	Tool        string         `json:"tool"`
	Kind        string         `json:"kind"`
	Message     string         `json:"message"`
	UserMessage string         `json:"user_message"`
	AutoFixed   bool           `json:"auto_fixed"`
	RawTrace    string         `json:"raw_trace,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

type errorList struct {
	SessionID string        `json:"session_id"`
	Errors    []errorDetail `json:"errors"`
}

type flagsResult struct {
	SessionID   string `json:"session_id"`
	DebugMode   bool   `json:"debug_mode"`
	VerboseMode bool   `json:"verbose_mode"`
}

// =============================================================================
// Endpoints
// =============================================================================

// Chat sends one utterance and returns the completed turn. An empty
// sessionID asks the server to create a new session.
func (c *apiClient) Chat(ctx context.Context, sessionID, message string) (*datatypes.ChatResponse, error) {
	req := datatypes.ChatRequest{SessionID: sessionID, Message: message}
	var resp datatypes.ChatResponse
	if err := c.postJSON(ctx, "/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Context fetches the session's context summary.
func (c *apiClient) Context(ctx context.Context, sessionID string) (*datatypes.ContextSummary, error) {
	var summary datatypes.ContextSummary
	if err := c.getJSON(ctx, "/v1/sessions/"+sessionID+"/context", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Report fetches the session's latest analysis report. Returns an
// *apiError with status 404 when no report has been generated.
func (c *apiClient) Report(ctx context.Context, sessionID string) (*datatypes.AnalysisReport, error) {
	var report datatypes.AnalysisReport
	if err := c.getJSON(ctx, "/v1/sessions/"+sessionID+"/report", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Errors lists the session's recorded failures, oldest first.
func (c *apiClient) Errors(ctx context.Context, sessionID string) (*errorList, error) {
	var list errorList
	if err := c.getJSON(ctx, "/v1/sessions/"+sessionID+"/errors", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Error fetches a single failure by numeric id or the literal "last".
func (c *apiClient) Error(ctx context.Context, sessionID, errorID string) (*errorDetail, error) {
	var detail errorDetail
	if err := c.getJSON(ctx, "/v1/sessions/"+sessionID+"/errors/"+errorID, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// SetFlags toggles the session's debug and verbose flags. Nil fields are
// left untouched server-side.
func (c *apiClient) SetFlags(ctx context.Context, sessionID string, flags datatypes.FlagsRequest) (*flagsResult, error) {
	var result flagsResult
	if err := c.postJSON(ctx, "/v1/sessions/"+sessionID+"/flags", flags, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSession closes a session and discards its state.
func (c *apiClient) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// =============================================================================
// Transport Helpers
// =============================================================================

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// do executes the request, maps non-2xx responses to *apiError and
// decodes the body into out when out is non-nil.
func (c *apiClient) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact orchestrator: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Message: serverMessage(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// serverMessage extracts the {"error": "..."} body the orchestrator uses
// for failures, falling back to the raw body.
func serverMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
