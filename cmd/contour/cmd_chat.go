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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ContourAI/ContourChat/pkg/ux"
)

const chatHistorySize = 50

// runChatCommand starts the interactive chat loop.
func runChatCommand(cmd *cobra.Command, args []string) {
	runner := NewChatRunner(ChatRunnerConfig{
		Client:    newAPIClient(serverURL, apiKey),
		Input:     NewInteractiveInputReader(chatHistorySize),
		Out:       os.Stdout,
		SessionID: resumeSessionID,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		ux.Error(err.Error())
		os.Exit(1)
	}
}

// runAskCommand sends one utterance and prints the completed turn.
func runAskCommand(cmd *cobra.Command, args []string) {
	utterance := strings.Join(args, " ")
	client := newAPIClient(serverURL, apiKey)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := client.Chat(ctx, resumeSessionID, utterance)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	for _, tool := range resp.Tools {
		icon := ux.IconSuccess
		switch tool.Status {
		case "error":
			icon = ux.IconError
		case "skipped":
			icon = ux.IconPending
		}
		ux.ToolStatus(tool.Tool, icon, tool.Status)
	}

	fmt.Println(resp.Reply)
	ux.Muted(fmt.Sprintf("session %s, turn %d", resp.SessionID, resp.Turn))
	if resp.Failed {
		os.Exit(1)
	}
}

// =============================================================================
// Session Subcommands
// =============================================================================

func runSessionContext(cmd *cobra.Command, args []string) {
	client := newAPIClient(serverURL, apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := client.Context(ctx, args[0])
	if err != nil {
		exitSessionError(err, args[0])
	}

	ux.Title("Session " + summary.SessionID)
	ux.Info(fmt.Sprintf("turns: %d", summary.TurnCount))
	if summary.HasData {
		ux.Info(fmt.Sprintf("data: %s (%s, %d members)", summary.DataLabel, summary.DataKind, summary.DataMembers))
	} else {
		ux.Info("data: none loaded")
	}
	if summary.HasVisualization {
		ux.Info("visualization: " + summary.VisualizationTool)
	}
	if summary.HasStatistics {
		ux.Info("statistics: " + summary.StatisticsKind)
	}
	if summary.HasReport {
		ux.Info(fmt.Sprintf("report: %d words", summary.ReportWordCount))
	}
	ux.Info(fmt.Sprintf("errors: %d, debug: %s, verbose: %s",
		summary.ErrorCount, onOff(summary.DebugMode), onOff(summary.VerboseMode)))
}

func runSessionReport(cmd *cobra.Command, args []string) {
	client := newAPIClient(serverURL, apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := client.Report(ctx, args[0])
	if err != nil {
		exitSessionError(err, args[0])
	}
	fmt.Println(report.Text)
}

func runSessionErrors(cmd *cobra.Command, args []string) {
	client := newAPIClient(serverURL, apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := client.Errors(ctx, args[0])
	if err != nil {
		exitSessionError(err, args[0])
	}
	if len(list.Errors) == 0 {
		ux.Info("no errors recorded")
		return
	}
	for _, e := range list.Errors {
		icon := ux.IconError
		if e.AutoFixed {
			icon = ux.IconWarning
		}
		ux.ToolStatus(fmt.Sprintf("#%d %s", e.ID, e.Tool), icon, e.UserMessage)
	}
}

func runSessionDelete(cmd *cobra.Command, args []string) {
	client := newAPIClient(serverURL, apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.DeleteSession(ctx, args[0]); err != nil {
		exitSessionError(err, args[0])
	}
	ux.Success("deleted session " + args[0])
}

// exitSessionError prints a friendly message for the common 404 case and
// exits non-zero.
func exitSessionError(err error, sessionID string) {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		ux.Error(fmt.Sprintf("%s (session %s)", apiErr.Message, sessionID))
	} else {
		ux.Error(err.Error())
	}
	os.Exit(1)
}
