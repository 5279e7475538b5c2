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

// =============================================================================
// DEPENDENCY STATE
// =============================================================================

// DependencyName identifies an external service the travel client relies on.
//
// # Description
//
// Names are stable strings such as "Gemini AI", "Firebase" or "Stripe".
// A name does not need a registered probe endpoint to be valid; names
// without one always resolve to ServiceStateUnknown.
type DependencyName string

// ServiceState is the reachability verdict for one dependency.
//
// # Description
//
// Severity order for aggregation is Connected < Limited < Disconnected.
// Unknown is informational: it marks a dependency as missing for a tab but
// never escalates the tab beyond AuditSeverityPartial.
//
// # Examples
//
//	status := checker.Check(ctx, "Firebase")
//	if status.State == ServiceStateConnected {
//	    fmt.Println("firebase reachable")
//	}
type ServiceState string

const (
	// ServiceStateConnected means the probe reported "ok" or a local
	// signal confirmed the dependency.
	ServiceStateConnected ServiceState = "Connected"

	// ServiceStateLimited means the probe reported "limited".
	ServiceStateLimited ServiceState = "Limited"

	// ServiceStateDisconnected means the probe reported another status or
	// failed with no better local signal.
	ServiceStateDisconnected ServiceState = "Disconnected"

	// ServiceStateUnknown means no verdict could be reached.
	ServiceStateUnknown ServiceState = "Unknown"
)

// rank orders states by severity. Unknown ranks with Connected because it
// is not a failure signal on its own.
func (s ServiceState) rank() int {
	switch s {
	case ServiceStateLimited:
		return 1
	case ServiceStateDisconnected:
		return 2
	default:
		return 0
	}
}

// Worse reports whether s is strictly more severe than other.
func (s ServiceState) Worse(other ServiceState) bool {
	return s.rank() > other.rank()
}

// ServiceStatus is one freshly produced reachability result.
//
// # Description
//
// Built on every check and never cached by this package. Message carries
// the probe's own message, the captured error, or the fallback reason.
type ServiceStatus struct {
	Name    DependencyName `json:"name"`
	State   ServiceState   `json:"state"`
	Message string         `json:"message,omitempty"`
}

// StatusSummary partitions dependency names by resulting state.
//
// Every input name lands in exactly one list.
type StatusSummary struct {
	Connected    []DependencyName `json:"connected"`
	Limited      []DependencyName `json:"limited"`
	Disconnected []DependencyName `json:"disconnected"`
	Unknown      []DependencyName `json:"unknown"`
}

// Total returns the number of names across all buckets.
func (s StatusSummary) Total() int {
	return len(s.Connected) + len(s.Limited) + len(s.Disconnected) + len(s.Unknown)
}

// =============================================================================
// COMPONENT STATE
// =============================================================================

// ComponentStatus describes one constituent element of a tab, or the tab
// itself when produced by VerifyVisibility.
type ComponentStatus struct {
	Name          string `json:"name"`
	IsVisible     bool   `json:"isVisible"`
	IsInteractive bool   `json:"isInteractive"`
	HasErrors     bool   `json:"hasErrors"`
	ErrorDetail   string `json:"errorDetail,omitempty"`
}

// =============================================================================
// AUDIT RESULT
// =============================================================================

// AuditSeverity ranks the health of an audited tab.
//
// # Description
//
// Total order OK < Partial < Broken. Within one audit run severity only
// moves up; see Escalate.
type AuditSeverity string

const (
	AuditSeverityOK      AuditSeverity = "OK"
	AuditSeverityPartial AuditSeverity = "Partial"
	AuditSeverityBroken  AuditSeverity = "Broken"
)

func (s AuditSeverity) rank() int {
	switch s {
	case AuditSeverityPartial:
		return 1
	case AuditSeverityBroken:
		return 2
	default:
		return 0
	}
}

// Escalate returns the more severe of s and next.
//
// # Examples
//
//	AuditSeverityBroken.Escalate(AuditSeverityPartial) // Broken
//	AuditSeverityOK.Escalate(AuditSeverityPartial)     // Partial
func (s AuditSeverity) Escalate(next AuditSeverity) AuditSeverity {
	if next.rank() > s.rank() {
		return next
	}
	if s == "" {
		return AuditSeverityOK
	}
	return s
}

// TabAuditResult is the outcome of one audit over one tab.
//
// # Description
//
// Field order is the serialization order used by FormatAuditResults.
// ServicesUsed and ServicesMissing hold dependency names in the tab's
// registry order, so the result does not depend on the order in which
// concurrent probes settled.
type TabAuditResult struct {
	Tab             string           `json:"tab"`
	Status          AuditSeverity    `json:"status"`
	Issues          []string         `json:"issues"`
	ServicesUsed    []DependencyName `json:"servicesUsed"`
	ServicesMissing []DependencyName `json:"servicesMissing"`
}

// newTabAuditResult returns the Init state of an audit run.
func newTabAuditResult(tab string) *TabAuditResult {
	return &TabAuditResult{
		Tab:             tab,
		Status:          AuditSeverityOK,
		Issues:          []string{},
		ServicesUsed:    []DependencyName{},
		ServicesMissing: []DependencyName{},
	}
}

// escalate applies status' = max(status, next) and records an issue.
func (r *TabAuditResult) escalate(next AuditSeverity, issue string) {
	r.Status = r.Status.Escalate(next)
	if issue != "" {
		r.Issues = append(r.Issues, issue)
	}
}
