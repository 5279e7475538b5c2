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

import "time"

// Observer receives measurements from the checker and the auditor.
//
// # Description
//
// Keeps metrics out of the core. The observability subpackage provides a
// Prometheus implementation; NoOpObserver is used when none is configured.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Observer interface {
	// ObserveProbe is called once per completed Check.
	ObserveProbe(name DependencyName, state ServiceState, elapsed time.Duration)

	// ObserveFallback is called when the heuristic path ran. outcome is the
	// resulting state.
	ObserveFallback(name DependencyName, outcome ServiceState)

	// ObserveAudit is called once per completed audit.
	ObserveAudit(result TabAuditResult, critical bool, elapsed time.Duration)
}

// NoOpObserver discards all measurements.
type NoOpObserver struct{}

func (NoOpObserver) ObserveProbe(DependencyName, ServiceState, time.Duration) {}
func (NoOpObserver) ObserveFallback(DependencyName, ServiceState)             {}
func (NoOpObserver) ObserveAudit(TabAuditResult, bool, time.Duration)         {}
