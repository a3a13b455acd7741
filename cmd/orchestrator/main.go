// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the ContourChat orchestrator HTTP server.
//
// This is the entry point for containerized deployments. Configuration
// comes from the file named by CONTOUR_CONFIG (optional) layered with
// CONTOUR_* environment variables; see pkg/config for the full list.
// For local use prefer "contour serve", which wraps the same server.
//
// # Usage
//
//	go build -o orchestrator ./cmd/orchestrator
//	CONTOUR_CONFIG=/etc/contourchat/config.yaml ./orchestrator
package main

import (
	"log/slog"
	"os"

	"github.com/ContourAI/ContourChat/pkg/config"
	"github.com/ContourAI/ContourChat/services/orchestrator"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONTOUR_CONFIG"))
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Server.Port,
		"llm_backend", cfg.LLM.Backend,
		"otlp_endpoint", cfg.Server.OTLPEndpoint,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		slog.Error("Orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}
