// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles and runs the ContourChat service.
//
// The orchestrator coordinates every component of a conversation turn: the
// session manager, the turn engine with its fast and slow paths, the tool
// registry over the visualization toolkit, the LLM planner, the snapshot
// store and the observability infrastructure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ContourAI/ContourChat/pkg/config"
	"github.com/ContourAI/ContourChat/services/llm"
	"github.com/ContourAI/ContourChat/services/orchestrator/conversation"
	"github.com/ContourAI/ContourChat/services/orchestrator/observability"
	"github.com/ContourAI/ContourChat/services/orchestrator/routes"
	"github.com/ContourAI/ContourChat/services/orchestrator/store"
	"github.com/ContourAI/ContourChat/services/tools"
	"github.com/ContourAI/ContourChat/services/viz"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the orchestrator lifecycle contract.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until a shutdown signal or a
	// fatal error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
type service struct {
	config config.Config
	router *gin.Engine

	manager *conversation.Manager
	engine  *conversation.Engine
	store   *store.Store

	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// New assembles a ready-to-run orchestrator.
//
// # Description
//
// Initialization order: tracing, metrics, the visualization toolkit and
// tool registry, the LLM planner for the configured backend, the session
// manager, the optional snapshot store, and finally the HTTP router. A
// backend of "none" disables the slow path; fast-path commands still work.
//
// # Inputs
//
//   - cfg: Validated configuration (see pkg/config). Zero values are NOT
//     defaulted here; load through config.Load or config.Default.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator.
//   - error: Non-nil when a required component cannot be built.
func New(cfg config.Config) (Service, error) {
	s := &service{config: cfg}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	metrics := observability.InitMetrics()

	planner, err := buildPlanner(cfg.LLM)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("initialize LLM backend: %w", err)
	}

	registry := tools.NewRegistry()
	var gen tools.Generator
	if planner != nil {
		gen = planner
	}
	tools.RegisterStandard(registry, viz.NewEngine(), gen)

	s.manager = conversation.NewManager(conversation.ManagerConfig{
		TTL:           cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		ErrorHistory:  cfg.Errors.MaxHistory,
		Metrics:       metrics,
	})

	if cfg.Sessions.StoreDir != "" {
		snapStore, err := store.Open(store.DefaultConfig(cfg.Sessions.StoreDir))
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		s.store = snapStore
		s.manager.SetEvictHook(s.snapshotSession)
		slog.Info("Session snapshot store opened", "dir", cfg.Sessions.StoreDir)
	}

	var enginePlanner conversation.Planner
	if planner != nil {
		enginePlanner = planner
	}
	s.engine = conversation.NewEngine(conversation.EngineConfig{
		Registry: registry,
		Planner:  enginePlanner,
		Metrics:  metrics,
		AutoFix:  cfg.Errors.AutoFix,
	})

	s.initRouter()
	return s, nil
}

// buildPlanner constructs the slow-path planner for the configured
// backend. A "none" backend returns nil, nil.
func buildPlanner(cfg config.LLMConfig) (*llm.Planner, error) {
	var (
		client llm.LLMClient
		err    error
	)
	switch cfg.Backend {
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "none":
		slog.Info("No LLM backend configured, slow path disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	limited := llm.NewRateLimitedClient(client, cfg.RatePerSecond, cfg.RateBurst)
	return llm.NewPlanner(limited), nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server, the session sweeper and (when configured)
// snapshot persistence, and blocks until SIGINT/SIGTERM or a fatal error.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.Port),
		Handler: s.router,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting orchestrator server", "port", s.config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.manager.RunSweeper(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down orchestrator server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Router returns the underlying Gin engine for testing. Callers must not
// register routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// An empty OTLP endpoint leaves the global no-op tracer in place, which
// suits local CLI use.
func (s *service) initTracer() (func(context.Context), error) {
	endpoint := s.config.Server.OTLPEndpoint
	if endpoint == "" {
		slog.Info("OTLP endpoint not configured, tracing disabled")
		return func(context.Context) {}, nil
	}

	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("contourchat-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("contourchat-orchestrator"))
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.SetupRoutes(s.router, s.manager, s.engine, s.config.Server.APIKey)
}

// snapshotSession persists an evicted session. Runs on the manager's
// sweep path, so failures are logged and swallowed.
func (s *service) snapshotSession(sess *conversation.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := &store.Snapshot{
		State:  sess.State,
		Errors: sess.Errors.List(),
	}
	if err := s.store.Save(ctx, snap); err != nil {
		slog.Warn("Failed to snapshot evicted session",
			"session_id", sess.State.ID, "error", err)
		return
	}
	slog.Debug("Session snapshot saved", "session_id", sess.State.ID)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Snapshot store close error", "error", err)
		}
		s.store = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
