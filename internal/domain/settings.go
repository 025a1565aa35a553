// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultLicenseKeyCharacters  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLicenseKeyLength      = 24
	DefaultLicenseKeyMaxAttempts = 1000
)

// ErrInvalidSettings is returned when the licensing settings cannot be used.
// The service refuses to start with invalid settings.
var ErrInvalidSettings = errors.New("invalid licensing settings")

// Settings controls license issuance and ownership behaviour.
type Settings struct {
	// AutoAssignUserOnPurchase links a purchased license to an existing user
	// whose email matches the order email.
	AutoAssignUserOnPurchase bool `toml:"autoAssignUserOnPurchase" mapstructure:"autoAssignUserOnPurchase" json:"autoAssignUserOnPurchase"`

	// AutoAssignLicensesOnUserRegistration links unowned licenses to a user
	// when the user account is activated.
	AutoAssignLicensesOnUserRegistration bool `toml:"autoAssignLicensesOnUserRegistration" mapstructure:"autoAssignLicensesOnUserRegistration" json:"autoAssignLicensesOnUserRegistration"`

	LicenseKeyCharacters string `toml:"licenseKeyCharacters" mapstructure:"licenseKeyCharacters" json:"licenseKeyCharacters" validate:"required"`
	LicenseKeyLength     int    `toml:"licenseKeyLength" mapstructure:"licenseKeyLength" json:"licenseKeyLength" validate:"gt=0,lte=255"`

	// LicenseKeyMaxAttempts bounds the random key generation loop.
	LicenseKeyMaxAttempts int `toml:"licenseKeyMaxAttempts" mapstructure:"licenseKeyMaxAttempts" json:"licenseKeyMaxAttempts" validate:"gt=0"`

	// RequireLoggedInUser blocks guest checkouts that contain a digital product.
	RequireLoggedInUser bool `toml:"requireLoggedInUser" mapstructure:"requireLoggedInUser" json:"requireLoggedInUser"`

	// GenerateLicenseOnOrderPaid issues licenses when the order is paid
	// instead of when it is completed.
	GenerateLicenseOnOrderPaid bool `toml:"generateLicenseOnOrderPaid" mapstructure:"generateLicenseOnOrderPaid" json:"generateLicenseOnOrderPaid"`
}

// DefaultSettings returns the licensing defaults.
func DefaultSettings() Settings {
	return Settings{
		AutoAssignUserOnPurchase:             false,
		AutoAssignLicensesOnUserRegistration: true,
		LicenseKeyCharacters:                 DefaultLicenseKeyCharacters,
		LicenseKeyLength:                     DefaultLicenseKeyLength,
		LicenseKeyMaxAttempts:                DefaultLicenseKeyMaxAttempts,
		RequireLoggedInUser:                  true,
		GenerateLicenseOnOrderPaid:           false,
	}
}

var settingsValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate returns an error wrapping ErrInvalidSettings when a value is unusable.
func (s Settings) Validate() error {
	err := settingsValidate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, settingsFieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(msgs, "; "))
}

func settingsFieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	if name != "" {
		name = strings.ToLower(name[:1]) + name[1:]
	}

	switch fe.Tag() {
	case "required":
		return name + " must not be empty"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}
