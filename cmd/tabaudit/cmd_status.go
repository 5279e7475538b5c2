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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabaudit/services/verification"
)

var statusCmd = &cobra.Command{
	Use:   "status <dependency>...",
	Short: "Check one or more external dependencies",
	Long: `Probes each named dependency once and prints its state.

Names without a registered status endpoint are reported Unknown.

Examples:
  tabaudit status Stripe
  tabaudit status "Gemini AI" Firebase --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeFn, err := openEngine()
		if err != nil {
			return err
		}
		defer closeFn()
		return runStatus(cmd.Context(), cmd.OutOrStdout(), engine, args, jsonOutput)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Check every known dependency and group them by state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeFn, err := openEngine()
		if err != nil {
			return err
		}
		defer closeFn()
		return runSummary(cmd.Context(), cmd.OutOrStdout(), engine, jsonOutput)
	},
}

func runStatus(ctx context.Context, w io.Writer, engine *verification.Engine, args []string, asJSON bool) error {
	names := make([]verification.DependencyName, 0, len(args))
	seen := make(map[verification.DependencyName]bool, len(args))
	for _, a := range args {
		n := verification.DependencyName(a)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	results := engine.CheckMultipleAPIStatus(ctx, names)

	if asJSON {
		ordered := make([]verification.ServiceStatus, len(names))
		for i, n := range names {
			ordered[i] = results[n]
		}
		return writeJSON(w, ordered)
	}
	_, err := io.WriteString(w, renderStatuses(names, results))
	return err
}

func runSummary(ctx context.Context, w io.Writer, engine *verification.Engine, asJSON bool) error {
	summary := engine.GetAPIStatusSummary(ctx)
	if asJSON {
		return writeJSON(w, summary)
	}
	_, err := io.WriteString(w, renderSummary(summary))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
