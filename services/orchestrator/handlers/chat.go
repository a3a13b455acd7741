// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the orchestrator's HTTP endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ContourAI/ContourChat/services/orchestrator/conversation"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("contour.orchestrator.handlers")

// HandleChat runs one conversation turn.
//
// POST /v1/chat with {"session_id": "...", "message": "..."}. An empty
// session id opens a new session; the response carries the assigned id.
func HandleChat(mgr *conversation.Manager, eng *conversation.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sess := mgr.GetOrCreate(req.SessionID)
		span.SetAttributes(attribute.String("session.id", sess.State.ID))

		resp := eng.RunTurn(ctx, sess, req.Message)
		span.SetAttributes(
			attribute.String("turn.path", resp.Path),
			attribute.Bool("turn.failed", resp.Failed),
		)
		c.JSON(http.StatusOK, resp)
	}
}
