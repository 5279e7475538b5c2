// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Issue texts produced by the audit pipeline.
const (
	IssueTabNotVisible         = "Tab is not visible in the sidebar/menu"
	IssueTabNotInteractive     = "Tab is visible but not interactive"
	IssueChatbotNotVisible     = "Chatbot is not visible in this tab"
	IssueChatbotNotInteractive = "Chatbot is visible but not interactive"
)

// =============================================================================
// INTERFACES
// =============================================================================

// IntegrityVerifier is the component side of an audit.
type IntegrityVerifier interface {
	VerifyVisibility(tab string) ComponentStatus
	VerifyComponents(tab string) []ComponentStatus
	VerifyChatbot(tab string) ComponentStatus
}

// DependencyChecker is the dependency side of an audit.
type DependencyChecker interface {
	CheckAll(ctx context.Context, names []DependencyName) map[DependencyName]ServiceStatus
}

// DependencyResolver maps a tab to the dependencies it requires.
//
// An error here is an orchestration failure, not an unhealthy tab: it
// aborts the audit with a critical result.
type DependencyResolver interface {
	ResolveDependencies(tab string) ([]DependencyName, error)
}

// DependencyResolverFunc adapts a function to DependencyResolver.
type DependencyResolverFunc func(tab string) ([]DependencyName, error)

func (f DependencyResolverFunc) ResolveDependencies(tab string) ([]DependencyName, error) {
	return f(tab)
}

// ResolveDependencies makes *Registry a DependencyResolver.
func (r *Registry) ResolveDependencies(tab string) ([]DependencyName, error) {
	return r.Dependencies(tab), nil
}

// =============================================================================
// TabAuditor
// =============================================================================

// AuditorConfig configures TabAuditor.
type AuditorConfig struct {
	Logger   *slog.Logger
	Observer Observer
	// Resolver defaults to the registry.
	Resolver DependencyResolver
}

// TabAuditor combines component, dependency and chatbot checks into one
// severity-ranked TabAuditResult.
//
// # Description
//
// Steps run in a fixed order: visibility, components, dependencies, chat
// integration. After each step the status is raised to the maximum of its
// current value and the step's severity, so the final status is the
// maximum over all steps whatever order they ran in.
//
// Any panic or resolver error during the pipeline discards the partial
// result and returns Broken with a single "Critical error during audit"
// issue.
//
// # Examples
//
//	auditor := NewTabAuditor(registry, verifier, aggregator, AuditorConfig{})
//	result := auditor.Audit(ctx, "Explore")
//	if result.Status != AuditSeverityOK {
//	    for _, issue := range result.Issues {
//	        fmt.Println(issue)
//	    }
//	}
//
// # Thread Safety
//
// Safe for concurrent use; each audit builds its own result.
type TabAuditor struct {
	registry *Registry
	verifier IntegrityVerifier
	deps     DependencyChecker
	resolver DependencyResolver
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewTabAuditor wires an auditor from its collaborators.
func NewTabAuditor(registry *Registry, verifier IntegrityVerifier, deps DependencyChecker, config AuditorConfig) *TabAuditor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Observer == nil {
		config.Observer = NoOpObserver{}
	}
	if config.Resolver == nil {
		config.Resolver = registry
	}
	return &TabAuditor{
		registry: registry,
		verifier: verifier,
		deps:     deps,
		resolver: config.Resolver,
		logger:   config.Logger,
		observer: config.Observer,
		tracer:   otel.Tracer(tracerName),
	}
}

// Audit evaluates tab and never panics.
func (a *TabAuditor) Audit(ctx context.Context, tab string) (result TabAuditResult) {
	start := time.Now()
	logger := a.logger.With("audit_id", uuid.NewString(), "tab", tab)
	ctx, span := a.tracer.Start(ctx, "verification.Audit",
		trace.WithAttributes(attribute.String("tab", tab)))

	critical := false
	defer func() {
		if r := recover(); r != nil {
			critical = true
			result = criticalResult(tab, fmt.Errorf("%v", r))
			span.SetStatus(codes.Error, "audit panicked")
			logger.Error("audit aborted by panic", "panic", r)
		}
		span.SetAttributes(attribute.String("status", string(result.Status)))
		span.End()
		a.observer.ObserveAudit(result, critical, time.Since(start))
		logger.Info("tab audited",
			"status", result.Status,
			"issues", len(result.Issues),
			"missing", len(result.ServicesMissing),
			"elapsed", time.Since(start))
	}()

	res, err := a.run(ctx, tab)
	if err != nil {
		critical = true
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("audit aborted", "error", err)
		return criticalResult(tab, err)
	}
	return *res
}

func (a *TabAuditor) run(ctx context.Context, tab string) (*TabAuditResult, error) {
	result := newTabAuditResult(tab)

	a.checkVisibility(result, tab)
	a.checkComponents(result, tab)
	if err := a.checkDependencies(ctx, result, tab); err != nil {
		return nil, err
	}
	if a.registry.IsChatTab(tab) {
		a.checkChatbot(result, tab)
	}
	return result, nil
}

func (a *TabAuditor) checkVisibility(result *TabAuditResult, tab string) {
	vis := a.verifier.VerifyVisibility(tab)
	switch {
	case !vis.IsVisible:
		result.escalate(AuditSeverityBroken, IssueTabNotVisible)
	case !vis.IsInteractive:
		result.escalate(AuditSeverityPartial, IssueTabNotInteractive)
	}
}

func (a *TabAuditor) checkComponents(result *TabAuditResult, tab string) {
	for _, comp := range a.verifier.VerifyComponents(tab) {
		if !comp.HasErrors {
			continue
		}
		result.escalate(AuditSeverityPartial,
			fmt.Sprintf("Component \"%s\" failed: %s", comp.Name, detailOrUnknown(comp.ErrorDetail)))
	}
}

func (a *TabAuditor) checkDependencies(ctx context.Context, result *TabAuditResult, tab string) error {
	required, err := a.resolver.ResolveDependencies(tab)
	if err != nil {
		return fmt.Errorf("resolve dependencies for %q: %w", tab, err)
	}
	required = dedupe(required)
	if len(required) == 0 {
		return nil
	}

	statuses := a.deps.CheckAll(ctx, required)
	used, missing := partitionDependencies(required, statuses)
	result.ServicesUsed = used
	result.ServicesMissing = missing

	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		result.escalate(AuditSeverityPartial, "APIs not connected: "+strings.Join(names, ", "))
	}
	return nil
}

func (a *TabAuditor) checkChatbot(result *TabAuditResult, tab string) {
	bot := a.verifier.VerifyChatbot(tab)
	switch {
	case !bot.IsVisible:
		result.escalate(AuditSeverityPartial, IssueChatbotNotVisible)
	case !bot.IsInteractive:
		result.escalate(AuditSeverityPartial, IssueChatbotNotInteractive)
	}
	if bot.HasErrors {
		result.escalate(AuditSeverityBroken, "Chatbot error: "+detailOrUnknown(bot.ErrorDetail))
	}
}

// partitionDependencies splits required into connected and not connected,
// preserving the order of required. A name missing from statuses counts as
// not connected.
func partitionDependencies(required []DependencyName, statuses map[DependencyName]ServiceStatus) (used, missing []DependencyName) {
	used = []DependencyName{}
	missing = []DependencyName{}
	for _, name := range required {
		if status, ok := statuses[name]; ok && status.State == ServiceStateConnected {
			used = append(used, name)
		} else {
			missing = append(missing, name)
		}
	}
	return used, missing
}

func criticalResult(tab string, err error) TabAuditResult {
	return TabAuditResult{
		Tab:             tab,
		Status:          AuditSeverityBroken,
		Issues:          []string{"Critical error during audit: " + err.Error()},
		ServicesUsed:    []DependencyName{},
		ServicesMissing: []DependencyName{},
	}
}

func detailOrUnknown(detail string) string {
	if detail == "" {
		return "Unknown error"
	}
	return detail
}
