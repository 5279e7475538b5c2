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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTravelServer serves every registered status endpoint, answering "ok"
// unless the path is listed in overrides.
func newTravelServer(t *testing.T, overrides map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if body, ok := overrides[r.URL.Path]; ok {
			_, _ = w.Write([]byte(body))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestEngine(t *testing.T, overrides map[string]string) *Engine {
	server := newTravelServer(t, overrides)
	cfg := EngineConfig{Checker: DefaultCheckerConfig()}
	cfg.Checker.BaseURL = server.URL
	return NewEngine(cfg)
}

func TestEngine_CheckAPIStatus(t *testing.T) {
	engine := newTestEngine(t, nil)

	status := engine.CheckAPIStatus(context.Background(), "Unregistered-XYZ")
	assert.Equal(t, ServiceStatus{
		Name:    "Unregistered-XYZ",
		State:   ServiceStateUnknown,
		Message: "no verification endpoint defined for this API",
	}, status)

	status = engine.CheckAPIStatus(context.Background(), "Stripe")
	assert.Equal(t, ServiceStateConnected, status.State)
}

func TestEngine_CheckMultipleAPIStatus(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"/api/amadeus/status": `{"status":"limited"}`,
	})

	results := engine.CheckMultipleAPIStatus(context.Background(),
		[]DependencyName{"Stripe", "Amadeus", "Gravatar"})

	require.Len(t, results, 3)
	assert.Equal(t, ServiceStateConnected, results["Stripe"].State)
	assert.Equal(t, ServiceStateLimited, results["Amadeus"].State)
	assert.Equal(t, ServiceStateUnknown, results["Gravatar"].State)
}

func TestEngine_GetAPIStatusSummary(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"/api/weather/status": `{"status":"error","message":"invalid key"}`,
	})

	summary := engine.GetAPIStatusSummary(context.Background())

	assert.Equal(t, len(engine.Dependencies()), summary.Total())
	assert.Equal(t, []DependencyName{"OpenWeather"}, summary.Disconnected)
	assert.Equal(t, []DependencyName{"Gravatar"}, summary.Unknown)
	assert.Empty(t, summary.Limited)
}

func TestEngine_AuditTabAndFormat(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"/api/tripadvisor/status": `{"status":"error"}`,
	})

	result := engine.AuditTab(context.Background(), "Explore")
	out := engine.FormatAuditResults(result)

	assert.Equal(t, AuditSeverityPartial, result.Status)
	assert.Equal(t, []DependencyName{"TripAdvisor"}, result.ServicesMissing)
	assert.Contains(t, out, `"servicesMissing": [`)
	assert.Contains(t, out, `"TripAdvisor"`)
}

func TestEngine_ZeroConfigUsesDefaultBaseURL(t *testing.T) {
	var gotURL string
	client := &mockProbeClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			gotURL = req.URL.String()
			return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
		},
	}
	engine := NewEngine(EngineConfig{HTTPClient: client})

	status := engine.CheckAPIStatus(context.Background(), "Stripe")

	assert.Equal(t, ServiceStateConnected, status.State)
	assert.Equal(t, DefaultBaseURL+"/api/stripe/status", gotURL)
}

func TestEngine_OddDependencyNamesAreUnknown(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()
	names := []DependencyName{
		"",
		" ",
		"\xff\xfe",
		"a\x00b",
		"../../etc/passwd",
		"Stripe; DROP TABLE",
		"名前",
		DependencyName(strings.Repeat("x", 4096)),
	}

	for _, name := range names {
		assert.NotPanics(t, func() {
			status := engine.CheckAPIStatus(ctx, name)
			assert.Equal(t, ServiceStatus{Name: name, State: ServiceStateUnknown, Message: MessageNoEndpoint}, status)
		}, "name %q", name)
	}

	var results map[DependencyName]ServiceStatus
	require.NotPanics(t, func() {
		results = engine.CheckMultipleAPIStatus(ctx, append(names, "Stripe"))
	})
	require.Len(t, results, len(names)+1)
	for _, name := range names {
		assert.Equal(t, MessageNoEndpoint, results[name].Message, "name %q", name)
	}
	assert.Equal(t, ServiceStateConnected, results["Stripe"].State)

	assert.Empty(t, engine.CheckMultipleAPIStatus(ctx, nil))
}

func TestEngine_WithChecker(t *testing.T) {
	mock := &MockStatusChecker{}
	engine := NewEngineWithChecker(EngineConfig{}, mock)

	result := engine.AuditTab(context.Background(), "Payments")

	assert.Equal(t, AuditSeverityOK, result.Status)
	assert.ElementsMatch(t, []DependencyName{"Stripe", "Firebase"}, mock.Calls())
	assert.Equal(t, DefaultRegistry().KnownTabs(), engine.KnownTabs())
}
