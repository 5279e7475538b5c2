// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-supplied identifiers before they reach
// storage.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// signalKeyPattern matches keys like "firebase:initialized" or
// "gemini:last_response": 1-128 chars, letters, digits and "._:-",
// not starting with punctuation.
var signalKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

// ValidateSignalKey reports whether key is a well-formed signal key.
//
// Examples:
//
//	ValidateSignalKey("firebase:initialized") // nil
//	ValidateSignalKey("")                     // error: empty
//	ValidateSignalKey("gemini last")          // error: contains a space
func ValidateSignalKey(key string) error {
	if key == "" {
		return fmt.Errorf("signal key cannot be empty")
	}
	if !signalKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid signal key %q (must be 1-128 letters, digits, '.', '_', ':' or '-')", key)
	}
	return nil
}

// SanitizeSignalKey trims surrounding whitespace and validates the result.
func SanitizeSignalKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if err := ValidateSignalKey(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
