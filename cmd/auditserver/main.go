// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command auditserver starts the tabaudit HTTP server.
//
// It reads ~/.tabaudit/tabaudit.yaml (or the file named by TABAUDIT_CONFIG),
// applies environment overrides and serves until SIGINT or SIGTERM.
//
// # Environment Variables
//
//   - TABAUDIT_CONFIG: config file path (default: ~/.tabaudit/tabaudit.yaml)
//   - TABAUDIT_PORT: HTTP server port (default: 12310)
//   - TABAUDIT_BASE_URL: base URL of the travel client's status endpoints
//   - TABAUDIT_SIGNALS_PATH: Badger directory for local signals
//   - TABAUDIT_LOG_LEVEL: debug, info, warn or error (default: info)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: enables OTLP trace export to this collector
//
// # Usage
//
//	go build -o auditserver ./cmd/auditserver
//	TABAUDIT_BASE_URL=http://localhost:3000 ./auditserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/tabaudit/pkg/logging"
	"github.com/AleutianAI/tabaudit/services/auditserver"
	"github.com/AleutianAI/tabaudit/services/auditserver/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("TABAUDIT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg, err = config.ApplyEnv(cfg, os.Getenv)
	if err != nil {
		log.Fatalf("Invalid environment override: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "auditserver",
		JSON:    true,
		Output:  os.Stdout,
		LogDir:  cfg.Log.Dir,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	slog.Info("Starting tabaudit",
		"port", cfg.Server.Port,
		"base_url", cfg.Probe.BaseURL,
		"signals_path", cfg.Signals.Path,
		"telemetry", cfg.Telemetry.Enabled,
	)

	svc, err := auditserver.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("Server error", "error", err)
		stop()
		_ = logger.Close()
		os.Exit(1)
	}
}
