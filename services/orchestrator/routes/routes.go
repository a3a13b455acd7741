// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/ContourAI/ContourChat/services/orchestrator/conversation"
	"github.com/ContourAI/ContourChat/services/orchestrator/handlers"
	"github.com/ContourAI/ContourChat/services/orchestrator/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the orchestrator's HTTP surface onto the router.
func SetupRoutes(router *gin.Engine, mgr *conversation.Manager, eng *conversation.Engine, apiKey string) {
	router.GET("/health", handlers.HealthCheck)

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.RequestID(), middleware.APIKeyAuth(apiKey))
	{
		v1.GET("/status", handlers.Status(mgr))
		v1.POST("/chat", handlers.HandleChat(mgr, eng))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(mgr, eng))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId/context", handlers.GetSessionContext(mgr))
			sessions.GET("/:sessionId/report", handlers.GetSessionReport(mgr))
			sessions.POST("/:sessionId/flags", handlers.SetSessionFlags(mgr))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(mgr))

			sessions.GET("/:sessionId/errors", handlers.ListSessionErrors(mgr))
			sessions.GET("/:sessionId/errors/:errorId", handlers.GetSessionError(mgr))
		}
	}
}
