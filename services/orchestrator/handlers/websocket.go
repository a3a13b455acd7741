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
	"log/slog"
	"net/http"

	"github.com/ContourAI/ContourChat/services/orchestrator/conversation"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSRequest is one inbound websocket frame.
type WSRequest struct {
	Message string `json:"message"`

	// Flags applies flag toggles in-band, without a separate HTTP call.
	Flags *datatypes.FlagsRequest `json:"flags,omitempty"`
}

// WSFrame is one outbound websocket frame. Type is "session_created",
// "progress", or "turn".
type WSFrame struct {
	Type     string                  `json:"type"`
	Event    *conversation.TurnEvent `json:"event,omitempty"`
	Turn     *datatypes.ChatResponse `json:"turn,omitempty"`
	Session  string                  `json:"session_id,omitempty"`
	ErrorMsg string                  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves a streaming conversation over one websocket.
//
// GET /v1/chat/ws. Each connection owns a fresh session; the session id is
// sent in the first frame. For every inbound message the handler streams
// progress frames for each turn stage, then the completed turn.
func HandleChatWebSocket(mgr *conversation.Manager, eng *conversation.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sess := mgr.Create()
		slog.Info("Websocket session started", "session_id", sess.State.ID)
		defer mgr.Delete(sess.State.ID)

		if err := sendJSON(ws, WSFrame{Type: "session_created", Session: sess.State.ID}); err != nil {
			return
		}

		for {
			var req WSRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "session_id", sess.State.ID, "error", err.Error())
				return
			}

			if req.Flags != nil {
				if req.Flags.DebugMode != nil {
					sess.State.DebugMode = *req.Flags.DebugMode
				}
				if req.Flags.VerboseMode != nil {
					sess.State.VerboseMode = *req.Flags.VerboseMode
				}
			}
			if req.Message == "" {
				continue
			}

			// Progress frames are best effort; a failed write ends the
			// connection after the turn completes.
			writeFailed := false
			resp := eng.RunTurnWithEvents(c.Request.Context(), sess, req.Message,
				func(ev conversation.TurnEvent) {
					e := ev
					if sendJSON(ws, WSFrame{Type: "progress", Event: &e}) != nil {
						writeFailed = true
					}
				})

			if sendJSON(ws, WSFrame{Type: "turn", Turn: resp}) != nil || writeFailed {
				return
			}
		}
	}
}
