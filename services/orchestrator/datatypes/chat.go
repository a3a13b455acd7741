// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains request and response types for the chat endpoints.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxUtteranceBytes is the maximum size of a single user utterance.
	// Checked in bytes, not runes, to bound memory against large payloads.
	MaxUtteranceBytes = 32 * 1024 // 32KB

	// MaxTranscriptMessages is the maximum number of transcript messages
	// accepted in a single chat request.
	MaxTranscriptMessages = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxUtteranceBytes on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxUtteranceBytes
}

// =============================================================================
// Messages
// =============================================================================

// Message is one transcript entry handed to the LLM backend.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role" validate:"required,oneof=system user assistant"`

	// Content is the message text.
	Content string `json:"content" validate:"maxbytes"`
}

// =============================================================================
// Chat Request / Response
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	// SessionID selects an existing session. Empty means "open a new
	// session"; the response carries the assigned id.
	SessionID string `json:"session_id"`

	// Message is the user utterance for this turn.
	Message string `json:"message" validate:"required,maxbytes"`
}

// Validate checks the request against field constraints.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return nil
}

// ToolOutcome summarizes one executed tool call within a turn.
type ToolOutcome struct {
	Tool    string `json:"tool"`
	Status  string `json:"status"` // "success", "error", "skipped"
	Message string `json:"message,omitempty"`

	// ErrorID is set when a failure was recorded in the error history.
	ErrorID *int `json:"error_id,omitempty"`
}

// ChatResponse is the body returned for a completed turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`

	// Path is "fast", "slow", or "noop" (fast-path command with no
	// visualization to apply it to).
	Path string `json:"path"`

	// Reply is the user-facing text for this turn.
	Reply string `json:"reply"`

	// Tools lists the tool calls executed, in order.
	Tools []ToolOutcome `json:"tools,omitempty"`

	// Failed is true when the turn ended with a recorded failure.
	Failed bool `json:"failed"`

	Context ContextSummary `json:"context"`
}

// =============================================================================
// Flag Toggles
// =============================================================================

// FlagsRequest is the body of POST /v1/sessions/:id/flags.
//
// Nil pointers leave the corresponding flag untouched, so a single call can
// toggle one flag without clobbering the other.
type FlagsRequest struct {
	DebugMode   *bool `json:"debug_mode,omitempty"`
	VerboseMode *bool `json:"verbose_mode,omitempty"`
}
