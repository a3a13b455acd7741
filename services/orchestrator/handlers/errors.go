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
	"strconv"

	"github.com/ContourAI/ContourChat/services/orchestrator/conversation"
	"github.com/ContourAI/ContourChat/services/orchestrator/errtrack"
	"github.com/gin-gonic/gin"
)

// errorView shapes a history entry for the wire. RawTrace is withheld
// unless the session has debug mode on.
type errorView struct {
	ID          int            `json:"id"`
	Tool        string         `json:"tool"`
	Kind        errtrack.Kind  `json:"kind"`
	Message     string         `json:"message"`
	UserMessage string         `json:"user_message"`
	AutoFixed   bool           `json:"auto_fixed"`
	RawTrace    string         `json:"raw_trace,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

func viewOf(e errtrack.Entry, debug bool) errorView {
	v := errorView{
		ID:          e.ID,
		Tool:        e.ToolName,
		Kind:        e.Kind,
		Message:     e.Message,
		UserMessage: e.UserMessage,
		AutoFixed:   e.AutoFixed,
		Context:     e.Context,
	}
	if debug {
		v.RawTrace = e.RawTrace
	}
	return v
}

// ListSessionErrors returns the session's bounded error history, oldest
// first.
//
// GET /v1/sessions/:sessionId/errors
func ListSessionErrors(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mgr.Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		entries := sess.Errors.List()
		views := make([]errorView, len(entries))
		for i, e := range entries {
			views[i] = viewOf(e, sess.State.DebugMode)
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sess.State.ID,
			"errors":     views,
		})
	}
}

// GetSessionError returns one history entry by id, or the most recent one
// for the literal id "last".
//
// GET /v1/sessions/:sessionId/errors/:errorId
func GetSessionError(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mgr.Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		raw := c.Param("errorId")
		var (
			entry errtrack.Entry
			found bool
		)
		if raw == "last" {
			entry, found = sess.Errors.Last()
		} else {
			id, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "error id must be a number or \"last\""})
				return
			}
			entry, found = sess.Errors.Get(id)
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such error in this session's history"})
			return
		}
		c.JSON(http.StatusOK, viewOf(entry, sess.State.DebugMode))
	}
}
