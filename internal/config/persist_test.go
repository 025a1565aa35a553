// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"strings"
	"testing"

	"github.com/autobrr/digiprod/internal/domain"
)

func TestUpdateSettingsInTOMLUpdatesCommentedKeysInPlace(t *testing.T) {
	content := `# config.toml - Auto-generated on first run

# Characters and length used for generated license keys
#licenseKeyCharacters = "abc"
#licenseKeyLength = 24

requireLoggedInUser = true

# HTTP Timeouts
[httpTimeouts]
#readTimeout = 60
`
	s := domain.DefaultSettings()
	s.LicenseKeyCharacters = "XYZ"
	s.LicenseKeyLength = 8
	s.RequireLoggedInUser = false

	updated := updateSettingsInTOML(content, s)

	httpIndex := strings.Index(updated, "[httpTimeouts]")
	if httpIndex == -1 {
		t.Fatalf("missing httpTimeouts section:\n%s", updated)
	}

	lastKeyLength := strings.LastIndex(updated, "licenseKeyLength")
	if lastKeyLength == -1 || lastKeyLength > httpIndex {
		t.Fatalf("licenseKeyLength missing or appended after table:\n%s", updated)
	}
	if strings.Count(updated, "licenseKeyLength") != 1 {
		t.Fatalf("licenseKeyLength duplicated:\n%s", updated)
	}

	for _, want := range []string{
		`licenseKeyCharacters = "XYZ"`,
		"licenseKeyLength = 8",
		"requireLoggedInUser = false",
		"generateLicenseOnOrderPaid = false",
		"autoAssignLicensesOnUserRegistration = true",
	} {
		if !strings.Contains(updated, want) {
			t.Fatalf("%q not found:\n%s", want, updated)
		}
	}

	generateIndex := strings.Index(updated, "generateLicenseOnOrderPaid")
	if generateIndex > httpIndex {
		t.Fatalf("missing keys must be inserted before the first table:\n%s", updated)
	}
}

func TestUpdateSettingsInTOMLIgnoresKeysInsideTables(t *testing.T) {
	content := `[other]
licenseKeyLength = 99
`
	updated := updateSettingsInTOML(content, domain.DefaultSettings())

	if !strings.HasPrefix(updated, "autoAssignUserOnPurchase = false") {
		t.Fatalf("expected settings inserted at the top:\n%s", updated)
	}
	if !strings.Contains(updated, "licenseKeyLength = 99") {
		t.Fatalf("table key must be left untouched:\n%s", updated)
	}
}
