// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signals.Path = "/tmp/signals"

	assert.NoError(t, Validate(cfg))
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tabaudit.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default file should be written")
	assert.Equal(t, 12310, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Probe.Timeout)
	assert.NotContains(t, cfg.Signals.Path, "~", "home is expanded")
}

func TestParse_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9000
probe:
  base_url: https://travel.example.com
  timeout: 2s
signals:
  in_memory: true
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, 10, cfg.Server.RateLimitBurst)
	assert.Equal(t, "https://travel.example.com", cfg.Probe.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Probe.Timeout)
	assert.True(t, cfg.Signals.InMemory)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "server: [unclosed"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"bad gin mode", "server:\n  gin_mode: verbose\n"},
		{"zero rate", "server:\n  rate_limit_rps: 0\n"},
		{"base url not a url", "probe:\n  base_url: not a url\n"},
		{"timeout too long", "probe:\n  timeout: 5m\n"},
		{"telemetry without endpoint", "telemetry:\n  enabled: true\n  otlp_endpoint: \"\"\n"},
		{"no signal path", "signals:\n  path: \"\"\n"},
		{"unknown log level", "log:\n  level: chatty\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPort:         "8088",
		EnvBaseURL:      "http://staging.internal:3000",
		EnvOTLPEndpoint: "collector:4317",
		EnvSignalsPath:  "/var/lib/tabaudit",
		EnvLogLevel:     "DEBUG",
	}
	base := DefaultConfig()
	base.Signals.InMemory = true

	cfg, err := ApplyEnv(base, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "http://staging.internal:3000", cfg.Probe.BaseURL)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "/var/lib/tabaudit", cfg.Signals.Path)
	assert.False(t, cfg.Signals.InMemory)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv_BadPort(t *testing.T) {
	_, err := ApplyEnv(DefaultConfig(), func(k string) string {
		if k == EnvPort {
			return "eighty"
		}
		return ""
	})
	assert.Error(t, err)
}
