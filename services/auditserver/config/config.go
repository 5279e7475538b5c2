// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the tabaudit YAML configuration.
package config

import (
	"time"
)

// Config is the root of tabaudit.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Probe     ProbeConfig     `yaml:"probe"`
	Signals   SignalsConfig   `yaml:"signals"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
	GinMode string `yaml:"gin_mode" validate:"oneof=debug release test"`
	// RateLimitRPS is the sustained rate of probe-triggering requests.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" validate:"min=1"`
}

// ProbeConfig configures dependency probes.
type ProbeConfig struct {
	// BaseURL is prepended to every registry endpoint path.
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0,max=60s"`
}

// SignalsConfig configures the Badger signal store.
type SignalsConfig struct {
	Path     string `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
}

// LogConfig configures the server logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// Dir, when set, receives a dated JSON copy of the log.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           12310,
			GinMode:        "release",
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Probe: ProbeConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 5 * time.Second,
		},
		Signals: SignalsConfig{
			Path: "~/.tabaudit/signals",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
