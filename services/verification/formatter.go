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

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FormatAuditResults serializes result as indented JSON.
//
// # Description
//
// Keys appear in the order tab, status, issues, servicesUsed,
// servicesMissing. Nil slices are written as empty arrays so the output
// shape never depends on how the result was built.
//
// # Examples
//
//	fmt.Println(FormatAuditResults(auditor.Audit(ctx, "Explore")))
//
// # Limitations
//
//   - Pure function; the result is not validated
func FormatAuditResults(result TabAuditResult) string {
	normalized := normalizeResult(result)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// Every field is a string or a string slice; encoding cannot fail.
	_ = enc.Encode(normalized)
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// FormatAuditText renders result for terminals.
func FormatAuditText(result TabAuditResult) string {
	r := normalizeResult(result)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "=== Tab Audit: %s ===\n", r.Tab)
	fmt.Fprintf(&buf, "Status: %s\n", r.Status)

	buf.WriteString("\nIssues:\n")
	if len(r.Issues) == 0 {
		buf.WriteString("  (none)\n")
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(&buf, "  - %s\n", issue)
	}

	buf.WriteString("\nServices used:\n")
	writeNames(&buf, r.ServicesUsed)
	buf.WriteString("\nServices missing:\n")
	writeNames(&buf, r.ServicesMissing)
	return buf.String()
}

func writeNames(buf *bytes.Buffer, names []DependencyName) {
	if len(names) == 0 {
		buf.WriteString("  (none)\n")
		return
	}
	for _, n := range names {
		fmt.Fprintf(buf, "  - %s\n", n)
	}
}

func normalizeResult(r TabAuditResult) TabAuditResult {
	if r.Issues == nil {
		r.Issues = []string{}
	}
	if r.ServicesUsed == nil {
		r.ServicesUsed = []DependencyName{}
	}
	if r.ServicesMissing == nil {
		r.ServicesMissing = []DependencyName{}
	}
	return r
}
