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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// mockProbeClient implements HTTPClient for probe tests.
type mockProbeClient struct {
	DoFunc func(*http.Request) (*http.Response, error)
	calls  int32
}

func (m *mockProbeClient) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func respondWith(code int, body string) *mockProbeClient {
	return &mockProbeClient{
		DoFunc: func(*http.Request) (*http.Response, error) {
			return jsonResponse(code, body), nil
		},
	}
}

func failingClient(err error) *mockProbeClient {
	return &mockProbeClient{
		DoFunc: func(*http.Request) (*http.Response, error) {
			return nil, err
		},
	}
}

func newTestChecker(client HTTPClient, signals SignalProvider) *DefaultStatusChecker {
	cfg := DefaultCheckerConfig()
	cfg.Timeout = time.Second
	return NewStatusCheckerWithHTTPClient(DefaultRegistry(), signals, cfg, client)
}

// panickingSignals panics on every lookup.
type panickingSignals struct{}

func (panickingSignals) Lookup(context.Context, string) (Signal, error) {
	panic("storage corrupted")
}

// =============================================================================
// UNIT TESTS: Check
// =============================================================================

func TestCheck_UnregisteredDependency(t *testing.T) {
	client := &mockProbeClient{}
	checker := newTestChecker(client, nil)

	status := checker.Check(context.Background(), "Unsplash")

	assert.Equal(t, ServiceStatus{
		Name:    "Unsplash",
		State:   ServiceStateUnknown,
		Message: "no verification endpoint defined for this API",
	}, status)
	assert.Zero(t, atomic.LoadInt32(&client.calls), "no network call for unregistered names")
}

func TestCheck_ProbeVerdicts(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		body        string
		wantState   ServiceState
		wantMessage string
	}{
		{"ok", http.StatusOK, `{"status":"ok"}`, ServiceStateConnected, ""},
		{"ok with message", http.StatusOK, `{"status":"ok","message":"all good"}`, ServiceStateConnected, "all good"},
		{"limited", http.StatusOK, `{"status":"limited","message":"quota low"}`, ServiceStateLimited, "quota low"},
		{"limited on 429", http.StatusTooManyRequests, `{"status":"limited"}`, ServiceStateLimited, ""},
		{"error status", http.StatusOK, `{"status":"error","message":"key revoked"}`, ServiceStateDisconnected, "key revoked"},
		{"ok on 503", http.StatusServiceUnavailable, `{"status":"ok"}`, ServiceStateDisconnected, `unexpected status "ok" (HTTP 503)`},
		{"missing status", http.StatusOK, `{}`, ServiceStateDisconnected, `unexpected status "" (HTTP 200)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newTestChecker(respondWith(tt.code, tt.body), nil)

			status := checker.Check(context.Background(), "Stripe")

			assert.Equal(t, DependencyName("Stripe"), status.Name)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantMessage, status.Message)
		})
	}
}

func TestCheck_RequestTargetsRegisteredEndpoint(t *testing.T) {
	var gotURL, gotAccept string
	client := &mockProbeClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			gotURL = req.URL.String()
			gotAccept = req.Header.Get("Accept")
			return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
		},
	}
	checker := newTestChecker(client, nil)

	checker.Check(context.Background(), "Google Maps")

	assert.Equal(t, "http://localhost:3000/api/maps/status", gotURL)
	assert.Equal(t, "application/json", gotAccept)
}

func TestCheck_AgainstLiveServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/stripe/status":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/api/amadeus/status":
			_, _ = w.Write([]byte(`{"status":"limited","message":"sandbox quota"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"error","message":"not found"}`))
		}
	}))
	defer server.Close()

	cfg := DefaultCheckerConfig()
	cfg.BaseURL = server.URL
	checker := NewStatusChecker(nil, nil, cfg)

	assert.Equal(t, ServiceStateConnected, checker.Check(context.Background(), "Stripe").State)
	assert.Equal(t, ServiceStateLimited, checker.Check(context.Background(), "Amadeus").State)

	weather := checker.Check(context.Background(), "OpenWeather")
	assert.Equal(t, ServiceStateDisconnected, weather.State)
	assert.Equal(t, "not found", weather.Message)
}

func TestCheck_CallerCancellationDoesNotAbortProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	cfg := DefaultCheckerConfig()
	cfg.BaseURL = server.URL
	checker := NewStatusChecker(nil, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, ServiceStateConnected, checker.Check(ctx, "Stripe").State)
}

func TestCheck_TimeoutBoundsProbe(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := DefaultCheckerConfig()
	cfg.BaseURL = server.URL
	cfg.Timeout = 50 * time.Millisecond
	checker := NewStatusChecker(nil, nil, cfg)

	start := time.Now()
	status := checker.Check(context.Background(), "Stripe")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, ServiceStateDisconnected, status.State)
	assert.Contains(t, status.Message, "request failed")
}

// =============================================================================
// UNIT TESTS: fallback heuristic
// =============================================================================

func TestCheck_NetworkFailureWithoutFallbackRule(t *testing.T) {
	checker := newTestChecker(failingClient(errors.New("connection refused")), nil)

	status := checker.Check(context.Background(), "Stripe")

	assert.Equal(t, ServiceStateDisconnected, status.State)
	assert.Contains(t, status.Message, "connection refused")
}

func TestCheck_FirebaseInitFlag(t *testing.T) {
	signals := NewMapSignalProvider()
	signals.Set("firebase:initialized", time.Now().Add(-48*time.Hour))
	checker := newTestChecker(failingClient(errors.New("timeout")), signals)

	status := checker.Check(context.Background(), "Firebase")

	assert.Equal(t, ServiceStateConnected, status.State)
	assert.Contains(t, status.Message, "firebase:initialized")
}

func TestCheck_FirebaseWithoutFlagIsUnknown(t *testing.T) {
	checker := newTestChecker(failingClient(errors.New("timeout")), NewMapSignalProvider())

	status := checker.Check(context.Background(), "Firebase")

	assert.Equal(t, ServiceStateUnknown, status.State)
	assert.Contains(t, status.Message, "no usable local signal")
}

func TestCheck_GeminiRecentActivity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		recorded  time.Time
		wantState ServiceState
	}{
		{"fresh", now.Add(-5 * time.Minute), ServiceStateConnected},
		{"at boundary", now.Add(-15 * time.Minute), ServiceStateConnected},
		{"stale", now.Add(-16 * time.Minute), ServiceStateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := NewMapSignalProvider()
			signals.Set("gemini:last_response", tt.recorded)

			cfg := DefaultCheckerConfig()
			cfg.Now = func() time.Time { return now }
			checker := NewStatusCheckerWithHTTPClient(nil, signals, cfg, failingClient(errors.New("dns failure")))

			status := checker.Check(context.Background(), "Gemini AI")

			assert.Equal(t, tt.wantState, status.State)
		})
	}
}

func TestCheck_UnparseableBodyFallsBack(t *testing.T) {
	signals := NewMapSignalProvider()
	signals.Set("firebase:initialized", time.Now())

	checker := newTestChecker(respondWith(http.StatusBadGateway, "<html>bad gateway</html>"), signals)
	status := checker.Check(context.Background(), "Firebase")
	assert.Equal(t, ServiceStateConnected, status.State)

	checker = newTestChecker(respondWith(http.StatusOK, "not json"), nil)
	status = checker.Check(context.Background(), "Stripe")
	assert.Equal(t, ServiceStateDisconnected, status.State)
	assert.Equal(t, "HTTP 200: unparseable status payload", status.Message)
}

func TestCheck_SignalProviderFailure(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		signals := NewMapSignalProvider()
		signals.Err = errors.New("quota exceeded")
		checker := newTestChecker(failingClient(errors.New("offline")), signals)

		status := checker.Check(context.Background(), "Firebase")

		assert.Equal(t, ServiceStateDisconnected, status.State)
		assert.Contains(t, status.Message, "offline")
	})

	t.Run("panic", func(t *testing.T) {
		checker := newTestChecker(failingClient(errors.New("offline")), panickingSignals{})

		require.NotPanics(t, func() {
			status := checker.Check(context.Background(), "Firebase")
			assert.Equal(t, ServiceStateDisconnected, status.State)
		})
	})
}

// =============================================================================
// UNIT TESTS: observer
// =============================================================================

type recordingObserver struct {
	probes    int32
	fallbacks int32
	audits    int32
	critical  int32
}

func (o *recordingObserver) ObserveProbe(DependencyName, ServiceState, time.Duration) {
	atomic.AddInt32(&o.probes, 1)
}

func (o *recordingObserver) ObserveFallback(DependencyName, ServiceState) {
	atomic.AddInt32(&o.fallbacks, 1)
}

func (o *recordingObserver) ObserveAudit(_ TabAuditResult, critical bool, _ time.Duration) {
	atomic.AddInt32(&o.audits, 1)
	if critical {
		atomic.AddInt32(&o.critical, 1)
	}
}

func TestCheck_ReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	cfg := DefaultCheckerConfig()
	cfg.Observer = obs
	checker := NewStatusCheckerWithHTTPClient(nil, NewMapSignalProvider(), cfg, failingClient(errors.New("down")))

	checker.Check(context.Background(), "Firebase")
	checker.Check(context.Background(), "Stripe")

	assert.Equal(t, int32(2), atomic.LoadInt32(&obs.probes))
	assert.Equal(t, int32(1), atomic.LoadInt32(&obs.fallbacks), "only Firebase has a fallback rule")
}

// =============================================================================
// UNIT TESTS: SSRF protection
// =============================================================================

func TestIsURLSafe(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:3000/api/stripe/status", false},
		{"http://127.0.0.1:3000/api", false},
		{"http://10.0.0.5/api", false},
		{"https://status.example.com/api", false},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://169.254.10.1/api", true},
		{"http:///nohost", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := isURLSafe(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheck_BlockedBaseURLNeverDials(t *testing.T) {
	client := &mockProbeClient{}
	cfg := DefaultCheckerConfig()
	cfg.BaseURL = "http://169.254.169.254"
	checker := NewStatusCheckerWithHTTPClient(nil, nil, cfg, client)

	status := checker.Check(context.Background(), "Stripe")

	assert.Equal(t, ServiceStateDisconnected, status.State)
	assert.Contains(t, status.Message, "SSRF")
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestMockStatusChecker_RecordsCalls(t *testing.T) {
	mock := &MockStatusChecker{}

	status := mock.Check(context.Background(), "Stripe")
	mock.Check(context.Background(), "Firebase")

	assert.Equal(t, ServiceStateConnected, status.State)
	assert.Equal(t, []DependencyName{"Stripe", "Firebase"}, mock.Calls())
}
