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
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ContourAI/ContourChat/pkg/config"
	"github.com/ContourAI/ContourChat/pkg/ux"
)

// runInitCommand writes a configuration file, either from an interactive
// wizard or from defaults with --defaults.
func runInitCommand(cmd *cobra.Command, args []string) {
	if _, err := os.Stat(initOutputPath); err == nil && !initForce {
		ux.Error(fmt.Sprintf("%s already exists (use --force to overwrite)", initOutputPath))
		os.Exit(1)
	}

	cfg := config.Default()

	if !initDefaults {
		if !ux.IsInteractive() {
			ux.Error("not a terminal; rerun with --defaults or in an interactive shell")
			os.Exit(1)
		}
		if err := runInitWizard(&cfg); err != nil {
			ux.Error("setup aborted: " + err.Error())
			os.Exit(1)
		}
	}

	if err := writeConfigFile(initOutputPath, cfg); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	ux.Success("wrote " + initOutputPath)
	ux.Muted("Start the orchestrator with: contour serve --config " + initOutputPath)
}

// runInitWizard collects the interesting settings; everything else keeps
// its default.
func runInitWizard(cfg *config.Config) error {
	backend := cfg.LLM.Backend
	port := strconv.Itoa(cfg.Server.Port)
	storeDir := cfg.Sessions.StoreDir
	key := cfg.Server.APIKey
	autoFix := cfg.Errors.AutoFix

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language backend").
				Description("Interprets free-form requests. \"none\" keeps only the deterministic command parser.").
				Options(
					huh.NewOption("Ollama (local model)", "ollama"),
					huh.NewOption("OpenAI-compatible API", "openai"),
					huh.NewOption("None", "none"),
				).
				Value(&backend),

			huh.NewInput().
				Title("HTTP port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("port must be 1-65535")
					}
					return nil
				}),

			huh.NewInput().
				Title("Session snapshot directory").
				Description("Evicted sessions are persisted here. Leave empty to disable.").
				Value(&storeDir),

			huh.NewInput().
				Title("API key").
				Description("Protects the /v1 API. Leave empty for open local access.").
				EchoMode(huh.EchoModePassword).
				Value(&key),

			huh.NewConfirm().
				Title("Retry tool calls with corrected parameters?").
				Description("One automatic retry when a parameter looks like a typo (\"virids\" for \"viridis\").").
				Value(&autoFix),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.LLM.Backend = backend
	cfg.Server.Port, _ = strconv.Atoi(port)
	cfg.Sessions.StoreDir = storeDir
	cfg.Server.APIKey = key
	cfg.Errors.AutoFix = autoFix
	return nil
}

func writeConfigFile(path string, cfg config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
