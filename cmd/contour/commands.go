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
	"os"

	"github.com/spf13/cobra"

	"github.com/ContourAI/ContourChat/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverURL        string // Orchestrator base URL for client commands
	apiKey           string // Bearer token for the /v1 API (optional)
	configPath       string // Config file for the serve command
	resumeSessionID  string // Session to resume in chat mode
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	initOutputPath string // Where the init wizard writes its config
	initForce      bool   // Overwrite an existing config file
	initDefaults   bool   // Skip the wizard and write defaults

	rootCmd = &cobra.Command{
		Use:   "contour",
		Short: "Client and server for the ContourChat analysis assistant",
		Long: `Contour is the command line interface for ContourChat, a
conversational front end for functional data analysis. It can talk to a
running orchestrator (chat, ask, session) or start one locally (serve).`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with the orchestrator",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	askCmd = &cobra.Command{
		Use:   "ask [utterance]",
		Short: "Send a single utterance and print the reply",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage conversation sessions",
	}
	sessionContextCmd = &cobra.Command{
		Use:   "context [session_id]",
		Short: "Show what the session currently knows",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionContext, // Defined in cmd_chat.go
	}
	sessionReportCmd = &cobra.Command{
		Use:   "report [session_id]",
		Short: "Print the session's latest analysis report",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionReport, // Defined in cmd_chat.go
	}
	sessionErrorsCmd = &cobra.Command{
		Use:   "errors [session_id]",
		Short: "List the session's recorded tool failures",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionErrors, // Defined in cmd_chat.go
	}
	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Close a session and discard its state",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionDelete, // Defined in cmd_chat.go
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the ContourChat orchestrator",
		Run:   runServeCommand, // Defined in cmd_serve.go
	}

	// --- Setup ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a ContourChat configuration file interactively",
		Run:   runInitCommand, // Defined in cmd_init.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersionCommand, // Defined in cmd_version.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(),
		"Orchestrator base URL (or CONTOUR_SERVER)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CONTOUR_API_KEY"),
		"API key for the /v1 endpoints (or CONTOUR_API_KEY)")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeSessionID, "resume", "",
		"Resume a conversation using a specific session ID")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&resumeSessionID, "session", "",
		"Send the utterance inside an existing session")

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionContextCmd)
	sessionCmd.AddCommand(sessionReportCmd)
	sessionCmd.AddCommand(sessionErrorsCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&configPath, "config", defaultConfigPath(),
		"Path to the YAML configuration file")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", defaultConfigPath(),
		"Where to write the configuration file")
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"Overwrite the configuration file if it already exists")
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false,
		"Skip the wizard and write default settings")

	rootCmd.AddCommand(versionCmd)
}

// defaultServerURL matches the orchestrator's default listen port.
func defaultServerURL() string {
	if v := os.Getenv("CONTOUR_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8085"
}

// defaultConfigPath is ~/.contourchat/config.yaml, falling back to a
// relative path when the home directory cannot be resolved.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return home + "/.contourchat/config.yaml"
}
