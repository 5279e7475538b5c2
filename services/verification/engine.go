// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verification answers two questions about the travel client: is
// external dependency X reachable, and is tab Y fully functional given its
// dependencies?
//
// # Description
//
// The package is built leaf first:
//   - DefaultStatusChecker probes one dependency (bounded HTTP request, then
//     a local-signal fallback).
//   - StatusAggregator runs checks concurrently and buckets the results.
//   - ComponentVerifier checks tab visibility and components against the
//     Registry.
//   - TabAuditor merges everything into a severity-ranked TabAuditResult.
//   - FormatAuditResults serializes a result.
//
// Engine wires these together and exposes the public entry points.
//
// # Thread Safety
//
// Every type in the package is safe for concurrent use once constructed.
package verification

import (
	"context"
	"log/slog"
)

// EngineConfig assembles an Engine. Zero values pick defaults.
type EngineConfig struct {
	Registry       *Registry
	Signals        SignalProvider
	Checker        CheckerConfig
	HTTPClient     HTTPClient
	ComponentProbe ComponentProbe
	Resolver       DependencyResolver
	Logger         *slog.Logger
	Observer       Observer
}

// Engine is the public surface of the verification core.
//
// # Description
//
// None of the entry points return errors. Dependency and component
// failures are reported inside the results; an orchestration failure
// during an audit becomes a Broken result.
//
// # Examples
//
//	engine := NewEngine(EngineConfig{})
//	status := engine.CheckAPIStatus(ctx, "Stripe")
//	result := engine.AuditTab(ctx, "Explore")
//	fmt.Println(FormatAuditResults(result))
type Engine struct {
	registry   *Registry
	checker    StatusChecker
	aggregator *StatusAggregator
	verifier   *ComponentVerifier
	auditor    *TabAuditor
}

// NewEngine builds every component from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NoOpObserver{}
	}
	cfg.Checker.Logger = cfg.Logger
	cfg.Checker.Observer = cfg.Observer

	var checker *DefaultStatusChecker
	if cfg.HTTPClient != nil {
		checker = NewStatusCheckerWithHTTPClient(cfg.Registry, cfg.Signals, cfg.Checker, cfg.HTTPClient)
	} else {
		checker = NewStatusChecker(cfg.Registry, cfg.Signals, cfg.Checker)
	}
	return newEngine(cfg, checker)
}

// NewEngineWithChecker builds an Engine around an existing checker.
func NewEngineWithChecker(cfg EngineConfig, checker StatusChecker) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return newEngine(cfg, checker)
}

func newEngine(cfg EngineConfig, checker StatusChecker) *Engine {
	aggregator := NewStatusAggregator(checker, cfg.Logger)
	verifier := NewComponentVerifier(cfg.Registry, cfg.ComponentProbe)
	auditor := NewTabAuditor(cfg.Registry, verifier, aggregator, AuditorConfig{
		Logger:   cfg.Logger,
		Observer: cfg.Observer,
		Resolver: cfg.Resolver,
	})
	return &Engine{
		registry:   cfg.Registry,
		checker:    checker,
		aggregator: aggregator,
		verifier:   verifier,
		auditor:    auditor,
	}
}

// CheckAPIStatus checks one dependency.
func (e *Engine) CheckAPIStatus(ctx context.Context, name DependencyName) ServiceStatus {
	return e.aggregator.safeCheck(ctx, name)
}

// CheckMultipleAPIStatus checks names concurrently.
func (e *Engine) CheckMultipleAPIStatus(ctx context.Context, names []DependencyName) map[DependencyName]ServiceStatus {
	return e.aggregator.CheckAll(ctx, names)
}

// GetAPIStatusSummary checks every dependency the registry knows about.
func (e *Engine) GetAPIStatusSummary(ctx context.Context) StatusSummary {
	return e.aggregator.Summarize(ctx, e.registry.DependencyNames())
}

// Summarize checks names and buckets them by state.
func (e *Engine) Summarize(ctx context.Context, names []DependencyName) StatusSummary {
	return e.aggregator.Summarize(ctx, names)
}

// AuditTab runs a full audit of tab.
func (e *Engine) AuditTab(ctx context.Context, tab string) TabAuditResult {
	return e.auditor.Audit(ctx, tab)
}

// FormatAuditResults is FormatAuditResults exposed on the engine for
// callers holding only an Engine.
func (e *Engine) FormatAuditResults(result TabAuditResult) string {
	return FormatAuditResults(result)
}

// KnownTabs lists the navigable tabs.
func (e *Engine) KnownTabs() []string {
	return e.registry.KnownTabs()
}

// Dependencies lists every dependency the registry knows about.
func (e *Engine) Dependencies() []DependencyName {
	return e.registry.DependencyNames()
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}
