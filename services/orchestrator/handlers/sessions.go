// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/ContourAI/ContourChat/services/orchestrator/conversation"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
)

// GetSessionContext returns the session's context summary.
//
// GET /v1/sessions/:sessionId/context
func GetSessionContext(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mgr.Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, sess.Summarize())
	}
}

// GetSessionReport returns the session's latest analysis report.
//
// GET /v1/sessions/:sessionId/report
func GetSessionReport(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mgr.Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		report := sess.State.Report
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report generated in this session"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// SetSessionFlags toggles the session's debug and verbose flags.
//
// POST /v1/sessions/:sessionId/flags with {"debug_mode": true} or
// {"verbose_mode": false}. Omitted flags are left untouched.
func SetSessionFlags(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mgr.Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		var req datatypes.FlagsRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.DebugMode != nil {
			sess.State.DebugMode = *req.DebugMode
		}
		if req.VerboseMode != nil {
			sess.State.VerboseMode = *req.VerboseMode
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id":   sess.State.ID,
			"debug_mode":   sess.State.DebugMode,
			"verbose_mode": sess.State.VerboseMode,
		})
	}
}

// DeleteSession closes a session and discards its state.
//
// DELETE /v1/sessions/:sessionId
func DeleteSession(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if !mgr.Delete(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}
