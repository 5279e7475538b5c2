// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auditserver provides the HTTP service in front of the
// verification engine.
//
// This package wires together every component of the service: the
// verification engine, the Badger signal store, HTTP routing, Prometheus
// metrics and OpenTelemetry tracing.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := auditserver.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run(ctx))
package auditserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/tabaudit/services/auditserver/config"
	"github.com/AleutianAI/tabaudit/services/auditserver/middleware"
	"github.com/AleutianAI/tabaudit/services/auditserver/routes"
	"github.com/AleutianAI/tabaudit/services/signalstore"
	"github.com/AleutianAI/tabaudit/services/verification"
	"github.com/AleutianAI/tabaudit/services/verification/observability"
)

// serviceName identifies the server in traces.
const serviceName = "tabaudit"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the audit server lifecycle.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the listener fails, then
	// shuts down gracefully and releases the signal store and exporter.
	Run(ctx context.Context) error

	// Router returns the configured gin engine for testing.
	Router() *gin.Engine
}

// Options overrides components built by New. Every field is optional.
type Options struct {
	// Registry replaces the default dependency and tab registry.
	Registry *verification.Registry

	// HTTPClient replaces the traced probe client.
	HTTPClient verification.HTTPClient

	// PromRegistry receives the metrics. Nil uses the default registerer
	// and serves promhttp.Handler().
	PromRegistry *prometheus.Registry
}

// service implements Service.
//
// # Fields
//
//   - config: validated configuration
//   - router: gin engine with all routes registered
//   - engine: verification engine
//   - store: Badger signal store
//   - tracerCleanup: flushes the OTLP exporter, nil when telemetry is off
type service struct {
	config        config.Config
	router        *gin.Engine
	engine        *verification.Engine
	store         *signalstore.Store
	tracerCleanup func(context.Context)
}

// New builds a Service from cfg.
//
// # Description
//
// New initializes, in order:
//  1. OpenTelemetry tracing (when cfg.Telemetry.Enabled)
//  2. Prometheus metrics
//  3. The Badger signal store
//  4. The verification engine
//  5. The gin router
func New(cfg config.Config, opts *Options) (Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	s := &service{config: cfg}

	if cfg.Telemetry.Enabled {
		cleanup, err := initTracer(cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	registry := opts.Registry
	if registry == nil {
		registry = verification.DefaultRegistry()
	}

	var metrics *observability.VerificationMetrics
	var metricsHandler http.Handler
	if opts.PromRegistry != nil {
		metrics = observability.NewVerificationMetrics(opts.PromRegistry, registry)
		metricsHandler = promhttp.HandlerFor(opts.PromRegistry, promhttp.HandlerOpts{})
	} else {
		metrics = observability.InitMetrics(registry)
		metricsHandler = promhttp.Handler()
	}

	storeCfg := signalstore.DefaultConfig(cfg.Signals.Path)
	storeCfg.InMemory = cfg.Signals.InMemory
	storeCfg.Logger = slog.Default()
	store, err := signalstore.Open(storeCfg)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open signal store: %w", err)
	}
	s.store = store

	checkerCfg := verification.DefaultCheckerConfig()
	checkerCfg.BaseURL = cfg.Probe.BaseURL
	checkerCfg.Timeout = cfg.Probe.Timeout
	s.engine = verification.NewEngine(verification.EngineConfig{
		Registry:   registry,
		Signals:    store,
		Checker:    checkerCfg,
		HTTPClient: opts.HTTPClient,
		Logger:     slog.Default(),
		Observer:   metrics,
	})

	gin.SetMode(cfg.Server.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery(), otelgin.Middleware(serviceName), middleware.RequestID(), middleware.Metrics(metrics))
	routes.SetupRoutes(s.router, routes.Deps{
		Engine:  s.engine,
		Signals: store,
		Metrics: metricsHandler,
		Limiter: rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst),
	})

	return s, nil
}

// Run serves until ctx is done.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting tabaudit server", "port", s.config.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down tabaudit server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// initTracer installs an OTLP/gRPC trace exporter as the global provider.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("signal store close error", "error", err)
		}
		s.store = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

var _ Service = (*service)(nil)
