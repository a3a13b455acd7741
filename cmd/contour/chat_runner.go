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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ContourAI/ContourChat/pkg/ux"
	"github.com/ContourAI/ContourChat/services/orchestrator/datatypes"
)

// =============================================================================
// ChatRunner
// =============================================================================

// ChatRunner drives the interactive chat loop against a running
// orchestrator.
//
// # Description
//
// The runner reads utterances from an InputReader, sends them through the
// /v1/chat endpoint and renders turn results. Lines starting with "/" are
// local commands handled against the session endpoints instead of being
// sent as chat:
//
//	/debug          toggle debug mode (raw traces, hints)
//	/verbose        toggle verbose mode (secondary output)
//	/errors         list recorded tool failures
//	/error <id>     show one failure, or "/error last"
//	/context        show what the session knows
//	/report         print the latest analysis report
//	/quit           end the session
//
// The session is created lazily by the server on the first utterance; the
// runner remembers the returned session id for the rest of the loop.
//
// # Thread Safety
//
// Not safe for concurrent Run calls. Single use.
type ChatRunner struct {
	client    *apiClient
	input     InputReader
	out       io.Writer
	sessionID string

	debugOn   bool
	verboseOn bool
	turns     int
	startedAt time.Time
}

// ChatRunnerConfig groups the runner's dependencies. Out defaults to
// os.Stdout when nil only through NewChatRunner callers passing it in;
// tests inject a buffer.
type ChatRunnerConfig struct {
	Client    *apiClient
	Input     InputReader
	Out       io.Writer
	SessionID string // resume an existing session, empty for a new one
}

func NewChatRunner(cfg ChatRunnerConfig) *ChatRunner {
	return &ChatRunner{
		client:    cfg.Client,
		input:     cfg.Input,
		out:       cfg.Out,
		sessionID: cfg.SessionID,
	}
}

// Run executes the chat loop until exit, EOF or context cancellation.
// Normal exits return nil; cancellation returns the context error.
func (r *ChatRunner) Run(ctx context.Context) error {
	r.startedAt = time.Now()

	// On resume, pick up the server's view of the session.
	if r.sessionID != "" {
		if summary, err := r.client.Context(ctx, r.sessionID); err == nil {
			r.debugOn = summary.DebugMode
			r.verboseOn = summary.VerboseMode
			r.turns = summary.TurnCount
		} else {
			return fmt.Errorf("resume session %s: %w", r.sessionID, err)
		}
	}

	r.printHeader()

	prompt := "you> "
	prompting, ownsPrompt := r.input.(PromptingInputReader)
	if ownsPrompt {
		prompting.SetPrompt(prompt)
	}

	for {
		select {
		case <-ctx.Done():
			return r.shutdown(ctx)
		default:
		}

		if !ownsPrompt {
			fmt.Fprint(r.out, prompt)
		}
		line, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				r.printFooter()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" || line == "/quit" {
			r.printFooter()
			return nil
		}

		if strings.HasPrefix(line, "/") {
			if err := r.handleCommand(ctx, line); err != nil {
				if ctx.Err() != nil {
					return r.shutdown(ctx)
				}
				fmt.Fprintf(r.out, "%s %s\n", ux.IconError.Render(), err)
			}
			continue
		}

		if err := r.sendTurn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return r.shutdown(ctx)
			}
			fmt.Fprintf(r.out, "%s %s\n", ux.IconError.Render(), err)
		}
	}
}

// sendTurn runs one chat turn and renders the outcome.
func (r *ChatRunner) sendTurn(ctx context.Context, utterance string) error {
	resp, err := r.client.Chat(ctx, r.sessionID, utterance)
	if err != nil {
		return err
	}
	r.sessionID = resp.SessionID
	r.turns++

	for _, tool := range resp.Tools {
		icon := ux.IconSuccess
		switch tool.Status {
		case "error":
			icon = ux.IconError
		case "skipped":
			icon = ux.IconPending
		}
		fmt.Fprintf(r.out, "  %s %s\n", icon.Render(), tool.Tool)
	}

	fmt.Fprintf(r.out, "%s\n", resp.Reply)
	return nil
}

// =============================================================================
// Slash Commands
// =============================================================================

func (r *ChatRunner) handleCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]

	// Every command below needs a live session.
	if r.sessionID == "" {
		fmt.Fprintln(r.out, "No session yet. Say something first.")
		return nil
	}

	switch cmd {
	case "/debug":
		want := !r.debugOn
		result, err := r.client.SetFlags(ctx, r.sessionID, datatypes.FlagsRequest{DebugMode: &want})
		if err != nil {
			return err
		}
		r.debugOn = result.DebugMode
		fmt.Fprintf(r.out, "debug mode %s\n", onOff(result.DebugMode))
		return nil

	case "/verbose":
		want := !r.verboseOn
		result, err := r.client.SetFlags(ctx, r.sessionID, datatypes.FlagsRequest{VerboseMode: &want})
		if err != nil {
			return err
		}
		r.verboseOn = result.VerboseMode
		fmt.Fprintf(r.out, "verbose mode %s\n", onOff(result.VerboseMode))
		return nil

	case "/errors":
		list, err := r.client.Errors(ctx, r.sessionID)
		if err != nil {
			return err
		}
		if len(list.Errors) == 0 {
			fmt.Fprintln(r.out, "No errors recorded in this session.")
			return nil
		}
		for _, e := range list.Errors {
			marker := ""
			if e.AutoFixed {
				marker = " (auto-fixed)"
			}
			fmt.Fprintf(r.out, "  #%d %s [%s]%s: %s\n", e.ID, e.Tool, e.Kind, marker, e.UserMessage)
		}
		return nil

	case "/error":
		id := "last"
		if len(fields) > 1 {
			id = fields[1]
		}
		detail, err := r.client.Error(ctx, r.sessionID, id)
		if err != nil {
			return err
		}
		r.printErrorDetail(detail)
		return nil

	case "/context":
		summary, err := r.client.Context(ctx, r.sessionID)
		if err != nil {
			return err
		}
		r.printContext(summary)
		return nil

	case "/report":
		report, err := r.client.Report(ctx, r.sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s\n", report.Text)
		fmt.Fprintf(r.out, "%s\n", ux.Styles.Muted.Render(
			fmt.Sprintf("(%s, %d words)", report.Format, report.WordCount)))
		return nil

	default:
		fmt.Fprintln(r.out, "Commands: /debug /verbose /errors /error <id|last> /context /report /quit")
		return nil
	}
}

func (r *ChatRunner) printErrorDetail(e *errorDetail) {
	fmt.Fprintf(r.out, "Error #%d  tool=%s  kind=%s\n", e.ID, e.Tool, e.Kind)
	fmt.Fprintf(r.out, "  %s\n", e.UserMessage)
	if e.AutoFixed {
		fmt.Fprintln(r.out, "  auto-fixed on retry")
	}
	if e.Message != "" && e.Message != e.UserMessage {
		fmt.Fprintf(r.out, "  detail: %s\n", e.Message)
	}
	if e.RawTrace != "" {
		fmt.Fprintf(r.out, "  trace:\n%s\n", e.RawTrace)
	}
}

func (r *ChatRunner) printContext(s *datatypes.ContextSummary) {
	fmt.Fprintf(r.out, "Session %s, turn %d\n", s.SessionID, s.TurnCount)
	if s.HasData {
		fmt.Fprintf(r.out, "  data: %s (%s, %d members)\n", s.DataLabel, s.DataKind, s.DataMembers)
	} else {
		fmt.Fprintln(r.out, "  data: none loaded")
	}
	if s.HasVisualization {
		fmt.Fprintf(r.out, "  visualization: %s\n", s.VisualizationTool)
	}
	if s.HasStatistics {
		fmt.Fprintf(r.out, "  statistics: %s\n", s.StatisticsKind)
	}
	if s.HasReport {
		fmt.Fprintln(r.out, "  report: available (/report)")
	}
	if s.ErrorCount > 0 {
		fmt.Fprintf(r.out, "  errors: %d recorded (/errors)\n", s.ErrorCount)
	}
}

// =============================================================================
// Lifecycle Output
// =============================================================================

func (r *ChatRunner) printHeader() {
	if r.sessionID != "" {
		fmt.Fprintf(r.out, "%s\n", ux.Styles.Subtitle.Render("Resuming session "+r.sessionID))
		return
	}
	fmt.Fprintf(r.out, "%s\n", ux.Styles.Subtitle.Render("ContourChat interactive session. Type /quit to end."))
}

func (r *ChatRunner) printFooter() {
	duration := time.Since(r.startedAt).Round(time.Second)
	if r.sessionID == "" {
		fmt.Fprintln(r.out, "Session ended.")
		return
	}
	fmt.Fprintf(r.out, "Session %s ended after %d turns (%s). Resume with --resume %s\n",
		r.sessionID, r.turns, duration, r.sessionID)
}

func (r *ChatRunner) shutdown(ctx context.Context) error {
	fmt.Fprintln(r.out)
	r.printFooter()
	return ctx.Err()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
