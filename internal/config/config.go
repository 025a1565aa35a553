// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/pkg/debounce"
)

const (
	appName           = "digiprod"
	envPrefix         = "DIGIPROD__"
	defaultConfigName = "config.toml"
	defaultDBName     = "digiprod.db"

	reloadDebounce = 250 * time.Millisecond
)

// AppConfig owns the loaded configuration and the licensing settings that can
// change while the service runs.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	settings   atomic.Pointer[domain.Settings]

	mu        sync.Mutex
	listeners []func(domain.Settings)
}

// New loads the configuration at configPath. An empty path uses the default
// config directory; a missing file is created with commented defaults.
func New(configPath string) (*AppConfig, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		log.Info().Str("path", path).Msg("Created default config")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &AppConfig{
		Config:     cfg,
		viper:      v,
		configPath: path,
	}
	settings := cfg.Settings
	c.settings.Store(&settings)

	return c, nil
}

func decode(v *viper.Viper) (*domain.Config, error) {
	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Current returns the active licensing settings.
func (c *AppConfig) Current() domain.Settings {
	if s := c.settings.Load(); s != nil {
		return *s
	}
	return c.Config.Settings
}

// OnSettingsChange registers fn to be called after settings were swapped.
func (c *AppConfig) OnSettingsChange(fn func(domain.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// ConfigPath returns the file the configuration was loaded from.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// GetDatabasePath returns the sqlite database path. Without an explicit
// databasePath the database lives next to the config file.
func (c *AppConfig) GetDatabasePath() string {
	if p := strings.TrimSpace(c.Config.DatabasePath); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.configPath), defaultDBName)
}

// Watch reloads licensing settings whenever the config file changes. An
// invalid file is logged and ignored; the previous settings stay active.
// Editors often emit several writes per save; they are coalesced into one
// reload.
func (c *AppConfig) Watch() {
	reloads := debounce.New(reloadDebounce)
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		reloads.Do(func() {
			if err := c.reload(); err != nil {
				log.Error().Err(err).Str("file", e.Name).Msg("Rejected config reload, keeping previous settings")
			}
		})
	})
	c.viper.WatchConfig()
}

func (c *AppConfig) reload() error {
	cfg, err := decode(c.viper)
	if err != nil {
		return err
	}
	if err := cfg.Settings.Validate(); err != nil {
		return err
	}

	c.apply(cfg.Settings)
	log.Info().Msg("Licensing settings reloaded")
	return nil
}

// UpdateSettings validates s, writes it to the config file and makes it active.
func (c *AppConfig) UpdateSettings(s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	content, err := os.ReadFile(c.configPath)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("read config: %w", err)
	}
	updated := updateSettingsInTOML(string(content), s)
	if err := os.WriteFile(c.configPath, []byte(updated), 0o644); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("write config: %w", err)
	}
	c.mu.Unlock()

	c.apply(s)
	return nil
}

func (c *AppConfig) apply(s domain.Settings) {
	c.settings.Store(&s)

	c.mu.Lock()
	listeners := append([]func(domain.Settings){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath == "" {
		return filepath.Join(getDefaultConfigDir(), defaultConfigName), nil
	}

	info, err := os.Stat(configPath)
	if err == nil && info.IsDir() {
		return filepath.Join(configPath, defaultConfigName), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat config path: %w", err)
	}
	if filepath.Ext(configPath) == "" {
		return filepath.Join(configPath, defaultConfigName), nil
	}
	return configPath, nil
}

func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		// containers mount the config volume directly at XDG_CONFIG_HOME
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, appName)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return "."
}

func setDefaults(v *viper.Viper) {
	defaults := domain.DefaultSettings()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 7480)
	v.SetDefault("baseUrl", "/")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("metricsHost", "127.0.0.1")
	v.SetDefault("metricsPort", 9074)
	v.SetDefault("trashRetentionDays", 30)
	v.SetDefault("databaseEngine", "sqlite")
	v.SetDefault("databaseSslMode", "disable")
	v.SetDefault("databaseConnectTimeout", 10)

	v.SetDefault("autoAssignUserOnPurchase", defaults.AutoAssignUserOnPurchase)
	v.SetDefault("autoAssignLicensesOnUserRegistration", defaults.AutoAssignLicensesOnUserRegistration)
	v.SetDefault("licenseKeyCharacters", defaults.LicenseKeyCharacters)
	v.SetDefault("licenseKeyLength", defaults.LicenseKeyLength)
	v.SetDefault("licenseKeyMaxAttempts", defaults.LicenseKeyMaxAttempts)
	v.SetDefault("requireLoggedInUser", defaults.RequireLoggedInUser)
	v.SetDefault("generateLicenseOnOrderPaid", defaults.GenerateLicenseOnOrderPaid)
}

var envKeys = []string{
	"host", "port", "baseUrl", "apiKey",
	"logLevel", "logPath", "logMaxSize", "logMaxBackups", "dataDir",
	"metricsEnabled", "metricsHost", "metricsPort", "metricsBasicAuthUsers",
	"corsAllowedOrigins", "hookAllowedCIDRs", "trashRetentionDays",
	"databaseEngine", "databasePath", "databaseDsn", "databaseHost", "databasePort",
	"databaseUser", "databasePassword", "databaseName", "databaseSslMode",
	"databaseConnectTimeout", "databaseMaxOpenConns", "databaseMaxIdleConns", "databaseConnMaxLifetime",
	"autoAssignUserOnPurchase", "autoAssignLicensesOnUserRegistration",
	"licenseKeyCharacters", "licenseKeyLength", "licenseKeyMaxAttempts",
	"requireLoggedInUser", "generateLicenseOnOrderPaid",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envKeys {
		if err := v.BindEnv(key, envPrefix+envKey(key)); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// envKey converts a camelCase config key to UPPER_SNAKE_CASE.
func envKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			// a trailing plural "s" stays attached to the acronym (CIDRs -> CIDRS)
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1]) &&
				(i+2 != len(runes) || runes[i+1] != 's')
			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
