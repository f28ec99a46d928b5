// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-supplied names.
//
// Model names end up as storage key segments, log attributes and URL
// query values, so they are restricted to a small character set.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModelName is returned for names that fail ValidateModelName.
var ErrInvalidModelName = errors.New("invalid model name")

// MaxModelNameLength bounds the length of a model name.
const MaxModelNameLength = 128

// ValidateModelName checks that a rotation model name is usable as a
// storage key segment.
//
// Valid names:
//   - 1-128 characters
//   - ASCII letters and digits
//   - '.', '_', '-', '+' and '=' after the first character
//
// Example:
//
//	if err := validation.ValidateModelName(name); err != nil {
//	    return fmt.Errorf("import: %w", err)
//	}
func ValidateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidModelName)
	}
	if len(name) > MaxModelNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidModelName, name, MaxModelNameLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isAlnum(c):
		case i > 0 && strings.IndexByte("._-+=", c) >= 0:
		default:
			return fmt.Errorf("%w: %q has invalid character %q at %d", ErrInvalidModelName, name, c, i)
		}
	}
	return nil
}

// ValidateModelNames validates several names and reports all invalid ones.
func ValidateModelNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateModelName(n); err != nil {
			invalid = append(invalid, n)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidModelName, invalid)
	}
	return nil
}

// SanitizeModelName trims surrounding whitespace and validates the result.
func SanitizeModelName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateModelName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
