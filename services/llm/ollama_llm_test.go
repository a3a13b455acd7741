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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

func TestOllamaGenerate(t *testing.T) {
	var gotPath string
	var gotReq ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model: "test-model", Response: "generated text", Done: true,
		})
	}))
	defer srv.Close()

	client := NewOllamaClientAt(srv.URL, "test-model")
	got, err := client.Generate(context.Background(), "a prompt", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "generated text" {
		t.Errorf("response = %q", got)
	}
	if gotPath != "/api/generate" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Model != "test-model" || gotReq.Prompt != "a prompt" || gotReq.Stream {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: datatypes.Message{Role: "assistant", Content: "chat reply"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := NewOllamaClientAt(srv.URL, "test-model")
	got, err := client.Chat(context.Background(),
		[]datatypes.Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got != "chat reply" {
		t.Errorf("response = %q", got)
	}
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "model 'missing' not found"}`))
	}))
	defer srv.Close()

	client := NewOllamaClientAt(srv.URL, "missing")
	_, err := client.Generate(context.Background(), "a prompt", GenerationParams{})
	if err == nil {
		t.Fatal("expected an error for a missing model")
	}
}

func TestOllamaGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := NewOllamaClientAt(srv.URL, "test-model")
	_, err := client.Generate(context.Background(), "a prompt", GenerationParams{})
	if err == nil {
		t.Fatal("expected an error for a server failure")
	}
}
