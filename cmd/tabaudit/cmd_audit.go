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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabaudit/services/verification"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	auditAll    bool // Audit every known tab
	auditStrict bool // Exit non-zero unless every audited tab is OK
)

// errAuditNotOK is returned in strict mode when an audit is not OK.
var errAuditNotOK = errors.New("one or more tabs are not fully functional")

// errNoTab is returned when no tab was given and none can be prompted for.
var errNoTab = errors.New("a tab name is required when stdin is not a terminal")

var auditCmd = &cobra.Command{
	Use:   "audit [tab]",
	Short: "Audit a tab's visibility, components and dependencies",
	Long: `Runs a full audit of one tab and prints a severity-ranked report.

Without a tab argument an interactive picker lists the known tabs.

Examples:
  tabaudit audit Explore
  tabaudit audit Chat --json
  tabaudit audit --all --strict   # CI gate: fail unless every tab is OK`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeFn, err := openEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		var tabs []string
		switch {
		case auditAll:
			tabs = engine.KnownTabs()
		case len(args) == 1:
			tabs = args
		default:
			tab, err := promptTab(engine.KnownTabs())
			if err != nil {
				return err
			}
			tabs = []string{tab}
		}
		return runAudit(cmd.Context(), cmd.OutOrStdout(), engine, tabs, jsonOutput, auditStrict)
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditAll, "all", false,
		"Audit every known tab")
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false,
		"Exit with an error unless every audited tab is OK")
}

func runAudit(ctx context.Context, w io.Writer, engine *verification.Engine, tabs []string, asJSON, strict bool) error {
	results := make([]verification.TabAuditResult, 0, len(tabs))
	for _, tab := range tabs {
		results = append(results, engine.AuditTab(ctx, tab))
	}

	if asJSON {
		if len(results) == 1 {
			if _, err := fmt.Fprintln(w, verification.FormatAuditResults(results[0])); err != nil {
				return err
			}
		} else if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if _, err := io.WriteString(w, renderAudit(r)); err != nil {
				return err
			}
		}
	}

	if strict {
		for _, r := range results {
			if r.Status != verification.AuditSeverityOK {
				return errAuditNotOK
			}
		}
	}
	return nil
}

// promptTab asks the user to pick a tab.
func promptTab(tabs []string) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", errNoTab
	}

	options := make([]huh.Option[string], len(tabs))
	for i, t := range tabs {
		options[i] = huh.NewOption(t, t)
	}

	var tab string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Tab").
				Description("Which tab should be audited?").
				Options(options...).
				Value(&tab),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("tab selection: %w", err)
	}
	return tab, nil
}
