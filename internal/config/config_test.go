// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

func TestDatabasePathConfiguration(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		envVars        map[string]string
		expectedDBPath string
	}{
		{
			name: "default_behavior_db_next_to_config",
			content: `
host = "localhost"
port = 7480
logLevel = "INFO"
`,
			expectedDBPath: "digiprod.db",
		},
		{
			name: "explicit_path_in_config",
			content: `
host = "localhost"
databasePath = "/data/custom.db"
`,
			expectedDBPath: "/data/custom.db",
		},
		{
			name: "env_var_overrides_config",
			content: `
host = "localhost"
databasePath = "/original/path.db"
`,
			envVars: map[string]string{
				"DIGIPROD__DATABASE_PATH": "/override/path.db",
			},
			expectedDBPath: "/override/path.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)
			require.NotNil(t, cfg)

			dbPath := cfg.GetDatabasePath()
			assert.Contains(t, dbPath, tt.expectedDBPath)
			if filepath.IsAbs(tt.expectedDBPath) {
				assert.Equal(t, tt.expectedDBPath, dbPath)
			} else {
				assert.Equal(t, filepath.Join(filepath.Dir(configPath), tt.expectedDBPath), dbPath)
			}
		})
	}
}

func TestNewWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := New(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, domain.DefaultSettings(), cfg.Current())
	assert.Equal(t, 7480, cfg.Config.Port)
	assert.Equal(t, 30, cfg.Config.TrashRetentionDays)
}

func TestLicensingSettingsFromFileAndEnv(t *testing.T) {
	configPath := writeConfig(t, `
licenseKeyCharacters = "ABC"
licenseKeyLength = 4
requireLoggedInUser = false
`)
	t.Setenv("DIGIPROD__GENERATE_LICENSE_ON_ORDER_PAID", "true")
	t.Setenv("DIGIPROD__HOOK_ALLOWED_CIDRS", "10.0.0.0/8,127.0.0.1")

	cfg, err := New(configPath)
	require.NoError(t, err)

	s := cfg.Current()
	assert.Equal(t, "ABC", s.LicenseKeyCharacters)
	assert.Equal(t, 4, s.LicenseKeyLength)
	assert.False(t, s.RequireLoggedInUser)
	assert.True(t, s.GenerateLicenseOnOrderPaid)
	assert.True(t, s.AutoAssignLicensesOnUserRegistration)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Config.HookAllowedCIDRs)
}

func TestInvalidSettingsAreFatal(t *testing.T) {
	configPath := writeConfig(t, `licenseKeyCharacters = ""`)

	_, err := New(configPath)
	require.ErrorIs(t, err, domain.ErrInvalidSettings)
}

func TestUpdateSettingsPersistsAndNotifies(t *testing.T) {
	configPath := writeConfig(t, defaultConfigTemplate)

	cfg, err := New(configPath)
	require.NoError(t, err)

	var notified []domain.Settings
	cfg.OnSettingsChange(func(s domain.Settings) {
		notified = append(notified, s)
	})

	next := cfg.Current()
	next.AutoAssignUserOnPurchase = true
	next.LicenseKeyLength = 32
	require.NoError(t, cfg.UpdateSettings(next))

	assert.Equal(t, next, cfg.Current())
	require.Len(t, notified, 1)
	assert.Equal(t, 32, notified[0].LicenseKeyLength)

	reloaded, err := New(configPath)
	require.NoError(t, err)
	assert.True(t, reloaded.Current().AutoAssignUserOnPurchase)
	assert.Equal(t, 32, reloaded.Current().LicenseKeyLength)
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	configPath := writeConfig(t, defaultConfigTemplate)

	cfg, err := New(configPath)
	require.NoError(t, err)

	bad := cfg.Current()
	bad.LicenseKeyLength = 0
	require.ErrorIs(t, cfg.UpdateSettings(bad), domain.ErrInvalidSettings)
	assert.Equal(t, domain.DefaultLicenseKeyLength, cfg.Current().LicenseKeyLength)
}

func TestReloadKeepsPreviousSettingsOnInvalidFile(t *testing.T) {
	configPath := writeConfig(t, `licenseKeyLength = 10`)

	cfg, err := New(configPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(configPath, []byte(`licenseKeyLength = -1`), 0o644))
	require.NoError(t, cfg.viper.ReadInConfig())
	require.Error(t, cfg.reload())
	assert.Equal(t, 10, cfg.Current().LicenseKeyLength)

	require.NoError(t, os.WriteFile(configPath, []byte(`licenseKeyLength = 12`), 0o644))
	require.NoError(t, cfg.viper.ReadInConfig())
	require.NoError(t, cfg.reload())
	assert.Equal(t, 12, cfg.Current().LicenseKeyLength)
}

func TestWatchReloadsSettings(t *testing.T) {
	configPath := writeConfig(t, `licenseKeyLength = 10`)

	cfg, err := New(configPath)
	require.NoError(t, err)

	changed := make(chan domain.Settings, 4)
	cfg.OnSettingsChange(func(s domain.Settings) { changed <- s })
	cfg.Watch()

	require.NoError(t, os.WriteFile(configPath, []byte(`licenseKeyLength = 20`), 0o644))

	require.Eventually(t, func() bool {
		return cfg.Current().LicenseKeyLength == 20
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 20, (<-changed).LicenseKeyLength)
}

func TestDockerEnvironmentCompatibility(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")
	assert.Equal(t, "/config", getDefaultConfigDir())

	t.Setenv("XDG_CONFIG_HOME", "/home/user/.config")
	assert.Equal(t, filepath.Join("/home/user/.config", "digiprod"), getDefaultConfigDir())
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"databasePath":                         "DATABASE_PATH",
		"baseUrl":                              "BASE_URL",
		"apiKey":                               "API_KEY",
		"databaseSslMode":                      "DATABASE_SSL_MODE",
		"hookAllowedCIDRs":                     "HOOK_ALLOWED_CIDRS",
		"autoAssignLicensesOnUserRegistration": "AUTO_ASSIGN_LICENSES_ON_USER_REGISTRATION",
		"host":                                 "HOST",
	}

	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
