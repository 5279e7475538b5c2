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
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/tabaudit/services/verification"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func stateStyle(state verification.ServiceState) lipgloss.Style {
	switch state {
	case verification.ServiceStateConnected:
		return okStyle
	case verification.ServiceStateLimited:
		return warnStyle
	case verification.ServiceStateDisconnected:
		return errorStyle
	default:
		return mutedStyle
	}
}

func severityStyle(s verification.AuditSeverity) lipgloss.Style {
	switch s {
	case verification.AuditSeverityOK:
		return okStyle
	case verification.AuditSeverityPartial:
		return warnStyle
	default:
		return errorStyle
	}
}

// =============================================================================
// RENDERERS
// =============================================================================

// renderStatuses prints one line per dependency in the given order.
func renderStatuses(order []verification.DependencyName, results map[verification.DependencyName]verification.ServiceStatus) string {
	width := 0
	for _, name := range order {
		width = max(width, len(name))
	}

	var b strings.Builder
	for _, name := range order {
		status := results[name]
		fmt.Fprintf(&b, "%-*s  %s", width, name, stateStyle(status.State).Render(string(status.State)))
		if status.Message != "" {
			fmt.Fprintf(&b, "  %s", mutedStyle.Render(status.Message))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderSummary prints the four buckets.
func renderSummary(s verification.StatusSummary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Dependencies (%d)", s.Total())))
	b.WriteString("\n")
	buckets := []struct {
		state verification.ServiceState
		names []verification.DependencyName
	}{
		{verification.ServiceStateConnected, s.Connected},
		{verification.ServiceStateLimited, s.Limited},
		{verification.ServiceStateDisconnected, s.Disconnected},
		{verification.ServiceStateUnknown, s.Unknown},
	}
	for _, bucket := range buckets {
		label := stateStyle(bucket.state).Render(fmt.Sprintf("%-12s", bucket.state))
		fmt.Fprintf(&b, "  %s %s\n", label, joinNames(bucket.names))
	}
	return b.String()
}

// renderAudit prints a boxed audit report.
func renderAudit(r verification.TabAuditResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render(r.Tab), severityStyle(r.Status).Render(string(r.Status)))

	if len(r.Issues) > 0 {
		b.WriteString("\nIssues:\n")
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "  • %s\n", issue)
		}
	}
	fmt.Fprintf(&b, "\nServices used:    %s\n", joinNames(r.ServicesUsed))
	fmt.Fprintf(&b, "Services missing: %s", joinNames(r.ServicesMissing))
	return boxStyle.Render(b.String()) + "\n"
}

func joinNames(names []verification.DependencyName) string {
	if len(names) == 0 {
		return mutedStyle.Render("-")
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
