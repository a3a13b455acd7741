// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring conversation
// turns. Metrics include:
//   - Turn counters (by path, status)
//   - Tool call counters (by tool, status)
//   - Planning latency histograms
//   - Recorded error counters (by kind)
//   - Active session gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "contour"

// Subsystem for orchestration metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for conversation turns.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring orchestration
// behavior. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type ChatMetrics struct {
	// TurnsTotal counts completed turns.
	// Labels: path (fast, slow, noop), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// ToolCallsTotal counts tool invocations.
	// Labels: tool, status (success, error, skipped)
	ToolCallsTotal *prometheus.CounterVec

	// PlanLatencySeconds measures the slow path's planning round trip.
	PlanLatencySeconds prometheus.Histogram

	// TurnDurationSeconds measures whole-turn duration.
	// Labels: path
	TurnDurationSeconds *prometheus.HistogramVec

	// ErrorsRecordedTotal counts entries added to session error history.
	// Labels: kind (invalid_value, shape_mismatch, ...)
	ErrorsRecordedTotal *prometheus.CounterVec

	// ActiveSessions tracks live sessions.
	ActiveSessions prometheus.Gauge
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

var initMetricsOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Registration happens once; later calls return the existing instance.
func InitMetrics() *ChatMetrics {
	initMetricsOnce.Do(initDefaultMetrics)
	return DefaultMetrics
}

func initDefaultMetrics() {
	DefaultMetrics = &ChatMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total completed conversation turns by path and status",
			},
			[]string{"path", "status"},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tool_calls_total",
				Help:      "Total tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),

		PlanLatencySeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "plan_latency_seconds",
				Help:      "Latency of the planning round trip in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Whole-turn duration in seconds by path",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"path"},
		),

		ErrorsRecordedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_recorded_total",
				Help:      "Total errors recorded into session history by kind",
			},
			[]string{"kind"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live sessions",
			},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed turn.
//
// # Inputs
//
//   - path: "fast", "slow", or "noop".
//   - success: Whether the turn completed without a recorded failure.
func (m *ChatMetrics) RecordTurn(path string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnsTotal.WithLabelValues(path, status).Inc()
}

// RecordToolCall records one tool invocation outcome.
func (m *ChatMetrics) RecordToolCall(tool, status string) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordPlanLatency records the planning round-trip time.
func (m *ChatMetrics) RecordPlanLatency(seconds float64) {
	m.PlanLatencySeconds.Observe(seconds)
}

// RecordTurnDuration records the whole-turn duration.
func (m *ChatMetrics) RecordTurnDuration(path string, seconds float64) {
	m.TurnDurationSeconds.WithLabelValues(path).Observe(seconds)
}

// RecordErrorEntry records one error-history insertion.
func (m *ChatMetrics) RecordErrorEntry(kind string) {
	m.ErrorsRecordedTotal.WithLabelValues(kind).Inc()
}

// SessionOpened increments the active session gauge.
func (m *ChatMetrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *ChatMetrics) SessionClosed() {
	m.ActiveSessions.Dec()
}
