// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tabaudit/services/signalstore"
	"github.com/AleutianAI/tabaudit/services/verification"
)

func testEngine(states map[verification.DependencyName]verification.ServiceState) *verification.Engine {
	checker := &verification.MockStatusChecker{
		CheckFunc: func(_ context.Context, name verification.DependencyName) verification.ServiceStatus {
			state, ok := states[name]
			if !ok {
				state = verification.ServiceStateConnected
			}
			return verification.ServiceStatus{Name: name, State: state}
		},
	}
	return verification.NewEngineWithChecker(verification.EngineConfig{}, checker)
}

func TestRunStatus_TextKeepsArgumentOrder(t *testing.T) {
	engine := testEngine(map[verification.DependencyName]verification.ServiceState{
		"Stripe": verification.ServiceStateLimited,
	})
	var buf bytes.Buffer

	require.NoError(t, runStatus(context.Background(), &buf, engine, []string{"Stripe", "Firebase", "Stripe"}, false))

	out := buf.String()
	assert.Contains(t, out, "Limited")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Stripe")), bytes.Index(buf.Bytes(), []byte("Firebase")))
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestRunStatus_JSON(t *testing.T) {
	engine := testEngine(nil)
	var buf bytes.Buffer

	require.NoError(t, runStatus(context.Background(), &buf, engine, []string{"Amadeus", "Firebase"}, true))

	var statuses []verification.ServiceStatus
	require.NoError(t, json.Unmarshal(buf.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, verification.DependencyName("Amadeus"), statuses[0].Name)
}

func TestRunSummary(t *testing.T) {
	engine := testEngine(map[verification.DependencyName]verification.ServiceState{
		"OpenWeather": verification.ServiceStateDisconnected,
	})

	var text bytes.Buffer
	require.NoError(t, runSummary(context.Background(), &text, engine, false))
	assert.Contains(t, text.String(), "OpenWeather")
	assert.Contains(t, text.String(), "Dependencies (8)")

	var js bytes.Buffer
	require.NoError(t, runSummary(context.Background(), &js, engine, true))
	var summary verification.StatusSummary
	require.NoError(t, json.Unmarshal(js.Bytes(), &summary))
	assert.Equal(t, []verification.DependencyName{"OpenWeather"}, summary.Disconnected)
}

func TestRunAudit_Text(t *testing.T) {
	engine := testEngine(map[verification.DependencyName]verification.ServiceState{
		"TripAdvisor": verification.ServiceStateDisconnected,
	})
	var buf bytes.Buffer

	require.NoError(t, runAudit(context.Background(), &buf, engine, []string{"Explore"}, false, false))

	out := buf.String()
	assert.Contains(t, out, "Explore")
	assert.Contains(t, out, "Partial")
	assert.Contains(t, out, "APIs not connected: TripAdvisor")
}

func TestRunAudit_JSONSingleAndMany(t *testing.T) {
	engine := testEngine(nil)

	var single bytes.Buffer
	require.NoError(t, runAudit(context.Background(), &single, engine, []string{"Chat"}, true, false))
	var one verification.TabAuditResult
	require.NoError(t, json.Unmarshal(single.Bytes(), &one))
	assert.Equal(t, verification.AuditSeverityOK, one.Status)

	var many bytes.Buffer
	require.NoError(t, runAudit(context.Background(), &many, engine, engine.KnownTabs(), true, false))
	var all []verification.TabAuditResult
	require.NoError(t, json.Unmarshal(many.Bytes(), &all))
	assert.Len(t, all, len(engine.KnownTabs()))
}

func TestRunAudit_Strict(t *testing.T) {
	engine := testEngine(nil)
	var buf bytes.Buffer

	assert.NoError(t, runAudit(context.Background(), &buf, engine, []string{"Payments"}, false, true))
	assert.ErrorIs(t, runAudit(context.Background(), &buf, engine, []string{"Nowhere"}, false, true), errAuditNotOK)
}

func TestRunSignalList(t *testing.T) {
	store, err := signalstore.Open(signalstore.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	var empty bytes.Buffer
	require.NoError(t, runSignalList(ctx, &empty, store, false))
	assert.Contains(t, empty.String(), "no signals recorded")

	require.NoError(t, store.Record(ctx, "firebase:initialized", 0))
	require.NoError(t, store.Record(ctx, "gemini:last_response", time.Hour))

	var text bytes.Buffer
	require.NoError(t, runSignalList(ctx, &text, store, false))
	assert.Contains(t, text.String(), "firebase:initialized")
	assert.Contains(t, text.String(), "expires never")

	var js bytes.Buffer
	require.NoError(t, runSignalList(ctx, &js, store, true))
	var entries []signalstore.Entry
	require.NoError(t, json.Unmarshal(js.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestRunSignalRemove(t *testing.T) {
	store, err := signalstore.Open(signalstore.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, "firebase:initialized", 0))

	var buf bytes.Buffer
	for _, bad := range []string{"", "   ", "firebase initialized", ":firebase", strings.Repeat("k", 129)} {
		assert.Error(t, runSignalRemove(ctx, &buf, store, bad), "key %q", bad)
	}
	assert.Empty(t, buf.String())

	sig, err := store.Lookup(ctx, "firebase:initialized")
	require.NoError(t, err)
	assert.True(t, sig.Present)

	require.NoError(t, runSignalRemove(ctx, &buf, store, "  firebase:initialized "))
	assert.Equal(t, "removed firebase:initialized\n", buf.String())

	sig, err = store.Lookup(ctx, "firebase:initialized")
	require.NoError(t, err)
	assert.False(t, sig.Present)
}

func TestInitStdoutTracer_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	stop, err := initStdoutTracer(&buf)
	require.NoError(t, err)

	testEngine(nil).AuditTab(context.Background(), "Settings")
	require.NoError(t, stop(context.Background()))

	assert.Contains(t, buf.String(), "verification.Audit")
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"status", "summary", "audit", "signal", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
