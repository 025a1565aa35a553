// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// SettingsProvider hands out the licensing settings that are active right now.
// Implementations may swap settings at runtime, so callers read them once per
// operation instead of holding on to a copy.
type SettingsProvider interface {
	Current() Settings
}

// Current lets a plain Settings value act as a fixed SettingsProvider.
func (s Settings) Current() Settings {
	return s
}
