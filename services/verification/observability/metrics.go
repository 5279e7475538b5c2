// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for dependency checks
// and tab audits.
//
// # Description
//
// VerificationMetrics implements verification.Observer. Metrics include:
//   - Probe counters and latency histograms by dependency
//   - Fallback counters by dependency and outcome
//   - Audit counters and latency histograms by tab
//   - HTTP request counters for the audit server
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint of the audit server.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/tabaudit/services/verification"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "tabaudit"

const (
	verificationSubsystem = "verification"
	serverSubsystem       = "server"
)

// VerificationMetrics holds all Prometheus metrics for the engine.
//
// # Fields
//
//   - ProbesTotal: Counter of dependency checks by dependency and state
//   - ProbeDurationSeconds: Histogram of check latency
//   - FallbacksTotal: Counter of heuristic fallbacks by outcome
//   - AuditsTotal: Counter of audits by tab and status
//   - AuditDurationSeconds: Histogram of audit latency
//   - CriticalAuditsTotal: Counter of audits aborted by a critical failure
//   - HTTPRequestsTotal: Counter of server requests by route and code
type VerificationMetrics struct {
	// Labels: dependency, state
	ProbesTotal *prometheus.CounterVec

	// Labels: dependency
	ProbeDurationSeconds *prometheus.HistogramVec

	// Labels: dependency, outcome
	FallbacksTotal *prometheus.CounterVec

	// Labels: tab, status
	AuditsTotal *prometheus.CounterVec

	// Labels: tab
	AuditDurationSeconds *prometheus.HistogramVec

	CriticalAuditsTotal prometheus.Counter

	// Labels: route, code
	HTTPRequestsTotal *prometheus.CounterVec

	tabs         map[string]struct{}
	dependencies map[verification.DependencyName]struct{}
}

var _ verification.Observer = (*VerificationMetrics)(nil)

// DefaultMetrics is the singleton registered by InitMetrics.
var DefaultMetrics *VerificationMetrics

// InitMetrics registers the metrics with the default Prometheus registry.
//
// # Examples
//
//	func main() {
//	    registry := verification.DefaultRegistry()
//	    metrics := observability.InitMetrics(registry)
//	    engine := verification.NewEngine(verification.EngineConfig{Registry: registry, Observer: metrics})
//	}
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics(registry *verification.Registry) *VerificationMetrics {
	DefaultMetrics = NewVerificationMetrics(prometheus.DefaultRegisterer, registry)
	return DefaultMetrics
}

// NewVerificationMetrics registers a fresh metric set with reg. Tests pass
// their own prometheus.NewRegistry().
//
// registry bounds the tab and dependency labels: names it does not know are
// recorded as "unknown" and "unregistered". A nil registry means
// verification.DefaultRegistry().
func NewVerificationMetrics(reg prometheus.Registerer, registry *verification.Registry) *VerificationMetrics {
	if registry == nil {
		registry = verification.DefaultRegistry()
	}
	tabs := make(map[string]struct{})
	for _, tab := range registry.KnownTabs() {
		tabs[tab] = struct{}{}
	}
	deps := make(map[verification.DependencyName]struct{})
	for _, name := range registry.DependencyNames() {
		deps[name] = struct{}{}
	}

	factory := promauto.With(reg)
	return &VerificationMetrics{
		tabs:         tabs,
		dependencies: deps,

		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: verificationSubsystem,
				Name:      "probes_total",
				Help:      "Total dependency checks by dependency and resulting state",
			},
			[]string{"dependency", "state"},
		),

		ProbeDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: verificationSubsystem,
				Name:      "probe_duration_seconds",
				Help:      "Dependency check duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"dependency"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: verificationSubsystem,
				Name:      "fallbacks_total",
				Help:      "Total local-signal fallbacks by dependency and outcome",
			},
			[]string{"dependency", "outcome"},
		),

		AuditsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: verificationSubsystem,
				Name:      "audits_total",
				Help:      "Total tab audits by tab and status",
			},
			[]string{"tab", "status"},
		),

		AuditDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: verificationSubsystem,
				Name:      "audit_duration_seconds",
				Help:      "Tab audit duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"tab"},
		),

		CriticalAuditsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: verificationSubsystem,
				Name:      "critical_audits_total",
				Help:      "Total audits aborted by a critical failure",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "http_requests_total",
				Help:      "Total audit server requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
}

// =============================================================================
// Observer
// =============================================================================

// ObserveProbe records a completed dependency check. Names outside the
// registry share the "unregistered" label.
func (m *VerificationMetrics) ObserveProbe(name verification.DependencyName, state verification.ServiceState, elapsed time.Duration) {
	dep := m.dependencyLabel(name)
	m.ProbesTotal.WithLabelValues(dep, string(state)).Inc()
	m.ProbeDurationSeconds.WithLabelValues(dep).Observe(elapsed.Seconds())
}

// ObserveFallback records a heuristic fallback.
func (m *VerificationMetrics) ObserveFallback(name verification.DependencyName, outcome verification.ServiceState) {
	m.FallbacksTotal.WithLabelValues(m.dependencyLabel(name), string(outcome)).Inc()
}

// ObserveAudit records a completed audit.
//
// # Limitations
//
//   - Tab names outside the registry are folded into "unknown" to keep
//     label cardinality bounded.
func (m *VerificationMetrics) ObserveAudit(result verification.TabAuditResult, critical bool, elapsed time.Duration) {
	tab := m.tabLabel(result.Tab)
	m.AuditsTotal.WithLabelValues(tab, string(result.Status)).Inc()
	m.AuditDurationSeconds.WithLabelValues(tab).Observe(elapsed.Seconds())
	if critical {
		m.CriticalAuditsTotal.Inc()
	}
}

// RecordHTTPRequest records one served request. route is the matched
// route template, not the raw path.
func (m *VerificationMetrics) RecordHTTPRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *VerificationMetrics) tabLabel(tab string) string {
	if _, ok := m.tabs[tab]; ok {
		return tab
	}
	return "unknown"
}

func (m *VerificationMetrics) dependencyLabel(name verification.DependencyName) string {
	if _, ok := m.dependencies[name]; ok {
		return string(name)
	}
	return "unregistered"
}
