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
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ContourAI/ContourChat/pkg/config"
	"github.com/ContourAI/ContourChat/pkg/logging"
	"github.com/ContourAI/ContourChat/pkg/ux"
	"github.com/ContourAI/ContourChat/services/orchestrator"
)

// runServeCommand loads configuration and runs the orchestrator until it
// receives SIGINT or SIGTERM.
func runServeCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		ux.Error("invalid configuration: " + err.Error())
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: "orchestrator",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	svc, err := orchestrator.New(cfg)
	if err != nil {
		ux.Error("start orchestrator: " + err.Error())
		os.Exit(1)
	}

	// Watch the config file so operators get a nudge instead of silent
	// drift. Settings are applied at startup; a change needs a restart.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		err := config.Watch(watchCtx, configPath, func(config.Config) {
			slog.Info("Configuration file changed; restart to apply", "path", configPath)
		})
		if err != nil && watchCtx.Err() == nil {
			slog.Warn("Config watcher stopped", "error", err)
		}
	}()

	ux.Info("orchestrator listening on port " + strconv.Itoa(cfg.Server.Port))
	if err := svc.Run(); err != nil {
		ux.Error("orchestrator: " + err.Error())
		os.Exit(1)
	}
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
