// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that arrive from the command line
// or configuration before they reach prompts, metric labels or file names.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidPower is returned for a malformed power name.
	ErrInvalidPower = errors.New("invalid power name")

	// ErrInvalidModelID is returned for a malformed model id.
	ErrInvalidModelID = errors.New("invalid model id")
)

// powerPattern matches power names such as FRANCE or AUSTRIA.
// Uppercase letters and underscores, 2-24 characters.
var powerPattern = regexp.MustCompile(`^[A-Z][A-Z_]{1,23}$`)

// modelPattern matches provider model ids such as gpt-4o,
// claude-3-5-haiku-20241022, llama3.1:8b or accounts/fireworks/models/x.
var modelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/\-]{0,127}$`)

// ValidatePower validates a power name.
//
// Valid names:
//   - 2-24 characters
//   - Uppercase letters A-Z
//   - Underscores after the first character
//
// Example:
//
//	if err := validation.ValidatePower(name); err != nil {
//	    return fmt.Errorf("sender: %w", err)
//	}
func ValidatePower(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPower)
	}
	if !powerPattern.MatchString(name) {
		return fmt.Errorf("%w: %q (must be 2-24 uppercase letters or underscores)", ErrInvalidPower, name)
	}
	return nil
}

// SanitizePower normalizes and validates a power name.
// Returns the trimmed uppercase name if valid.
func SanitizePower(name string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if err := ValidatePower(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizePowers applies SanitizePower to every name and reports all
// invalid entries at once.
func SanitizePowers(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	var invalid []string
	for _, n := range names {
		s, err := SanitizePower(n)
		if err != nil {
			invalid = append(invalid, n)
			continue
		}
		out = append(out, s)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPower, invalid)
	}
	return out, nil
}

// ValidateModelID validates a model id. Ids become Prometheus label values
// and log attributes, so whitespace and control characters are rejected.
func ValidateModelID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelID)
	}
	if !modelPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	return nil
}
