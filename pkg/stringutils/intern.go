// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package stringutils normalizes user supplied identifiers such as email
// addresses and product type handles.
package stringutils

import (
	"strings"
	"unique"
)

// Intern returns a canonical copy of s so repeated values share memory.
func Intern(s string) string {
	if s == "" {
		return ""
	}
	return unique.Make(s).Value()
}

// InternNormalized interns the trimmed, lower case form of s.
func InternNormalized(s string) string {
	return Intern(strings.ToLower(strings.TrimSpace(s)))
}
