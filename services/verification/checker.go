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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/AleutianAI/tabaudit/services/verification"

// DefaultProbeTimeout bounds every network probe.
const DefaultProbeTimeout = 5 * time.Second

// DefaultBaseURL is the travel client's local dev server.
const DefaultBaseURL = "http://localhost:3000"

// maxProbeBody caps how much of a probe response is read.
const maxProbeBody = 64 << 10

// MessageNoEndpoint is reported for dependencies without a probe endpoint.
const MessageNoEndpoint = "no verification endpoint defined for this API"

// =============================================================================
// INTERFACES
// =============================================================================

// StatusChecker probes one named dependency.
//
// # Description
//
// Check never fails from the caller's point of view: every error is folded
// into the returned ServiceStatus. A dependency with no registered endpoint
// is answered immediately with ServiceStateUnknown and no network call.
//
// # Examples
//
//	checker := NewStatusChecker(DefaultRegistry(), NoSignals{}, DefaultCheckerConfig())
//	status := checker.Check(ctx, "Stripe")
//	fmt.Printf("%s: %s (%s)\n", status.Name, status.State, status.Message)
//
// # Limitations
//
//   - One request per check; no retries
//
// # Assumptions
//
//   - Probe endpoints answer {"status": "ok"|"limited"|..., "message": "..."}
type StatusChecker interface {
	Check(ctx context.Context, name DependencyName) ServiceStatus
}

// HTTPClient is the subset of *http.Client used for probes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// CheckerConfig configures DefaultStatusChecker.
type CheckerConfig struct {
	// BaseURL is prepended to registry endpoint paths. Empty means
	// DefaultBaseURL.
	BaseURL string

	// Timeout bounds each probe. Zero means DefaultProbeTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer defaults to NoOpObserver.
	Observer Observer

	// Now is the clock used by the recent-activity heuristic.
	Now func() time.Time
}

// DefaultCheckerConfig returns a config pointing at the local dev server.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultProbeTimeout,
	}
}

func (c CheckerConfig) withDefaults() CheckerConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultProbeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Observer == nil {
		c.Observer = NoOpObserver{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// =============================================================================
// ERROR VARIABLES
// =============================================================================

// ErrSSRFBlocked is returned when a probe URL targets a blocked IP range.
var ErrSSRFBlocked = errors.New("URL blocked: potential SSRF attack")

// errUnparseableBody marks a response whose payload could not be decoded.
var errUnparseableBody = errors.New("unparseable status payload")

// =============================================================================
// DefaultStatusChecker
// =============================================================================

// DefaultStatusChecker implements StatusChecker over HTTP plus the local
// signal fallback.
//
// # Thread Safety
//
// Safe for concurrent use. All fields are read-only after construction.
type DefaultStatusChecker struct {
	registry   *Registry
	signals    SignalProvider
	httpClient HTTPClient
	config     CheckerConfig
	tracer     trace.Tracer
}

// NewStatusChecker creates a checker with a traced HTTP client.
func NewStatusChecker(registry *Registry, signals SignalProvider, config CheckerConfig) *DefaultStatusChecker {
	config = config.withDefaults()
	client := &http.Client{
		Timeout: config.Timeout,
		Transport: otelhttp.NewTransport(&http.Transport{
			DisableKeepAlives: true,
		}),
	}
	return NewStatusCheckerWithHTTPClient(registry, signals, config, client)
}

// NewStatusCheckerWithHTTPClient creates a checker with an injected client.
// Used by tests to stub probe responses.
func NewStatusCheckerWithHTTPClient(registry *Registry, signals SignalProvider, config CheckerConfig, httpClient HTTPClient) *DefaultStatusChecker {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if signals == nil {
		signals = NoSignals{}
	}
	return &DefaultStatusChecker{
		registry:   registry,
		signals:    signals,
		httpClient: httpClient,
		config:     config.withDefaults(),
		tracer:     otel.Tracer(tracerName),
	}
}

// Check probes name and returns a fresh status.
func (c *DefaultStatusChecker) Check(ctx context.Context, name DependencyName) ServiceStatus {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "verification.Check",
		trace.WithAttributes(attribute.String("dependency", string(name))))
	defer span.End()

	status := c.check(ctx, name)

	span.SetAttributes(attribute.String("state", string(status.State)))
	c.config.Observer.ObserveProbe(name, status.State, time.Since(start))
	c.config.Logger.Debug("dependency checked",
		"dependency", name,
		"state", status.State,
		"message", status.Message,
		"elapsed", time.Since(start))
	return status
}

func (c *DefaultStatusChecker) check(ctx context.Context, name DependencyName) ServiceStatus {
	path, ok := c.registry.Endpoint(name)
	if !ok {
		return ServiceStatus{Name: name, State: ServiceStateUnknown, Message: MessageNoEndpoint}
	}

	status, err := c.probe(ctx, name, path)
	if err == nil {
		return status
	}
	return c.fallback(ctx, name, err)
}

// probeResponse is the body shape served by every status endpoint.
type probeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// probe issues the single bounded request. A non-nil error means the
// request did not produce a usable verdict and the fallback should run.
func (c *DefaultStatusChecker) probe(ctx context.Context, name DependencyName, path string) (ServiceStatus, error) {
	target := c.resolveURL(path)
	if err := isURLSafe(target); err != nil {
		return ServiceStatus{}, err
	}

	// Probes are not cancelled by the caller; only the timeout ends them.
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return ServiceStatus{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ServiceStatus{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return ServiceStatus{}, fmt.Errorf("read response: %w", err)
	}

	var body probeResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return ServiceStatus{}, fmt.Errorf("HTTP %d: %w", resp.StatusCode, errUnparseableBody)
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	status := ServiceStatus{Name: name, Message: body.Message}
	switch {
	case success && body.Status == "ok":
		status.State = ServiceStateConnected
	case body.Status == "limited":
		status.State = ServiceStateLimited
	default:
		status.State = ServiceStateDisconnected
		if status.Message == "" {
			status.Message = fmt.Sprintf("unexpected status %q (HTTP %d)", body.Status, resp.StatusCode)
		}
	}
	return status, nil
}

// fallback applies the local-signal heuristic after a failed probe.
func (c *DefaultStatusChecker) fallback(ctx context.Context, name DependencyName, probeErr error) ServiceStatus {
	failed := ServiceStatus{Name: name, State: ServiceStateDisconnected, Message: probeErr.Error()}

	rule, ok := c.registry.Fallback(name)
	if !ok {
		return failed
	}

	signal, err := c.lookupSignal(ctx, rule.Key)
	if err != nil {
		c.config.Logger.Warn("local signal lookup failed",
			"dependency", name,
			"key", rule.Key,
			"error", err)
		c.config.Observer.ObserveFallback(name, failed.State)
		return failed
	}

	var status ServiceStatus
	switch {
	case rule.Kind == FallbackInitFlag && signal.Present:
		status = ServiceStatus{
			Name:    name,
			State:   ServiceStateConnected,
			Message: fmt.Sprintf("network check failed; initialization flag %q present", rule.Key),
		}
	case rule.Kind == FallbackRecentActivity && signal.Present && c.config.Now().Sub(signal.RecordedAt) <= rule.MaxAge:
		status = ServiceStatus{
			Name:    name,
			State:   ServiceStateConnected,
			Message: fmt.Sprintf("network check failed; recent activity recorded at %s", signal.RecordedAt.UTC().Format(time.RFC3339)),
		}
	default:
		status = ServiceStatus{
			Name:    name,
			State:   ServiceStateUnknown,
			Message: fmt.Sprintf("network check failed (%v); no usable local signal", probeErr),
		}
	}

	c.config.Logger.Info("probe fell back to local signal",
		"dependency", name,
		"probe_error", probeErr,
		"state", status.State)
	c.config.Observer.ObserveFallback(name, status.State)
	return status
}

// lookupSignal converts a panicking provider into an error.
func (c *DefaultStatusChecker) lookupSignal(ctx context.Context, key string) (signal Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during signal lookup: %v", r)
		}
	}()
	return c.signals.Lookup(ctx, key)
}

func (c *DefaultStatusChecker) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// =============================================================================
// SSRF PROTECTION
// =============================================================================

// isURLSafe rejects probe targets in cloud metadata and link-local ranges.
//
// # Description
//
// The base URL comes from configuration, so a bad value could point probes
// at instance metadata. Loopback, private networks and public hosts are
// allowed.
func isURLSafe(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}

	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("%w: cloud metadata endpoint blocked", ErrSSRFBlocked)
	}

	linkLocal := net.IPNet{
		IP:   net.ParseIP("169.254.0.0"),
		Mask: net.CIDRMask(16, 32),
	}
	if linkLocal.Contains(ip) {
		return fmt.Errorf("%w: link-local address blocked", ErrSSRFBlocked)
	}
	return nil
}

// =============================================================================
// MockStatusChecker
// =============================================================================

// MockStatusChecker is a configurable StatusChecker for tests.
//
// # Examples
//
//	mock := &MockStatusChecker{
//	    CheckFunc: func(ctx context.Context, name DependencyName) ServiceStatus {
//	        return ServiceStatus{Name: name, State: ServiceStateConnected}
//	    },
//	}
type MockStatusChecker struct {
	CheckFunc func(ctx context.Context, name DependencyName) ServiceStatus

	mu    sync.Mutex
	calls []DependencyName
}

// Check records the call and delegates to CheckFunc. Without CheckFunc it
// answers Connected.
func (m *MockStatusChecker) Check(ctx context.Context, name DependencyName) ServiceStatus {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, name)
	}
	return ServiceStatus{Name: name, State: ServiceStateConnected}
}

// Calls returns the recorded dependency names in call order.
func (m *MockStatusChecker) Calls() []DependencyName {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DependencyName(nil), m.calls...)
}
