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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabaudit/pkg/logging"
	"github.com/AleutianAI/tabaudit/services/auditserver/config"
	"github.com/AleutianAI/tabaudit/services/signalstore"
	"github.com/AleutianAI/tabaudit/services/verification"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	configPath   string // Config file; empty means ~/.tabaudit/tabaudit.yaml
	jsonOutput   bool   // Machine-readable output
	traceEnabled bool   // Print spans to stderr
	verbose      bool   // Debug logging
	baseURLFlag  string // Overrides probe.base_url
	logDir       string // Optional JSON log copy
)

var (
	// stopTracer flushes the stdout exporter when --trace is set.
	stopTracer func(context.Context) error

	cliLogger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tabaudit",
	Short: "Verify external dependencies and audit tabs of the travel client",
	Long: `tabaudit answers two questions about the travel client:

  - is external dependency X reachable right now?
  - is tab Y fully functional given its dependencies?

Every check is fresh; nothing is cached between runs.

Examples:
  tabaudit status Stripe "Gemini AI"   # Check specific dependencies
  tabaudit summary                     # Bucket every known dependency
  tabaudit audit Explore               # Audit one tab
  tabaudit audit --all --json          # Audit every tab as JSON
  tabaudit serve                       # Run the HTTP server`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		if traceEnabled {
			stop, err := initStdoutTracer(os.Stderr)
			if err != nil {
				return fmt.Errorf("enable tracing: %w", err)
			}
			stopTracer = stop
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopTracer != nil {
			_ = stopTracer(context.Background())
		}
		if cliLogger != nil {
			_ = cliLogger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.tabaudit/tabaudit.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false,
		"Print OpenTelemetry spans to stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "",
		"Base URL of the status endpoints (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Also append JSON logs to a dated file in this directory")

	rootCmd.AddCommand(statusCmd, summaryCmd, auditCmd, signalCmd, serveCmd)
}

func setupLogging() {
	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	cliLogger = logging.New(logging.Config{
		Level:   level,
		Service: "tabaudit",
		Output:  os.Stderr,
		LogDir:  logDir,
	})
	slog.SetDefault(cliLogger.Slog())
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig reads the config file and applies env and flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err = config.ApplyEnv(cfg, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	if baseURLFlag != "" {
		cfg.Probe.BaseURL = baseURLFlag
		if err := config.Validate(cfg); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// openStore opens the configured signal store.
func openStore(cfg config.Config) (*signalstore.Store, error) {
	storeCfg := signalstore.DefaultConfig(cfg.Signals.Path)
	storeCfg.InMemory = cfg.Signals.InMemory
	storeCfg.GCInterval = 0
	return signalstore.Open(storeCfg)
}

// openEngine builds an engine from the config. The signal store is
// optional: when it is locked by a running server the engine runs without
// local signals.
func openEngine() (*verification.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var signals verification.SignalProvider = verification.NoSignals{}
	closeFn := func() {}
	if store, err := openStore(cfg); err != nil {
		slog.Warn("signal store unavailable, fallback heuristics disabled", "error", err)
	} else {
		signals = store
		closeFn = func() { _ = store.Close() }
	}

	checkerCfg := verification.DefaultCheckerConfig()
	checkerCfg.BaseURL = cfg.Probe.BaseURL
	checkerCfg.Timeout = cfg.Probe.Timeout

	engine := verification.NewEngine(verification.EngineConfig{
		Signals: signals,
		Checker: checkerCfg,
		Logger:  slog.Default(),
	})
	return engine, closeFn, nil
}
