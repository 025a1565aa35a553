// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"fmt"
	"net/netip"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	APIKey        string `toml:"apiKey" mapstructure:"apiKey"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`

	// MetricsBasicAuthUsers is a comma separated list of user:password pairs
	// protecting the metrics listener.
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	CORSAllowedOrigins []string `toml:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins"`

	// HookAllowedCIDRs restricts the /api/hooks endpoints to the host shop's
	// addresses. Empty allows any caller holding the API key.
	HookAllowedCIDRs []string `toml:"hookAllowedCIDRs" mapstructure:"hookAllowedCIDRs"`

	// TrashRetentionDays is how long soft-deleted products are kept before
	// garbage collection removes them together with their licenses.
	TrashRetentionDays int `toml:"trashRetentionDays" mapstructure:"trashRetentionDays"`

	DatabaseEngine          string `toml:"databaseEngine" mapstructure:"databaseEngine"`
	DatabasePath            string `toml:"databasePath" mapstructure:"databasePath"`
	DatabaseDSN             string `toml:"databaseDsn" mapstructure:"databaseDsn"`
	DatabaseHost            string `toml:"databaseHost" mapstructure:"databaseHost"`
	DatabasePort            int    `toml:"databasePort" mapstructure:"databasePort"`
	DatabaseUser            string `toml:"databaseUser" mapstructure:"databaseUser"`
	DatabasePassword        string `toml:"databasePassword" mapstructure:"databasePassword"`
	DatabaseName            string `toml:"databaseName" mapstructure:"databaseName"`
	DatabaseSSLMode         string `toml:"databaseSslMode" mapstructure:"databaseSslMode"`
	DatabaseConnectTimeout  int    `toml:"databaseConnectTimeout" mapstructure:"databaseConnectTimeout"`
	DatabaseMaxOpenConns    int    `toml:"databaseMaxOpenConns" mapstructure:"databaseMaxOpenConns"`
	DatabaseMaxIdleConns    int    `toml:"databaseMaxIdleConns" mapstructure:"databaseMaxIdleConns"`
	DatabaseConnMaxLifetime int    `toml:"databaseConnMaxLifetime" mapstructure:"databaseConnMaxLifetime"`

	Settings `mapstructure:",squash"`
}

// ParseHookAllowedCIDRs parses the configured webhook caller ranges.
// Entries can be either CIDR (for example 192.168.1.0/24) or a single IP
// (for example 192.168.1.10, which is treated as /32 or /128).
func (c *Config) ParseHookAllowedCIDRs() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.HookAllowedCIDRs))

	for _, raw := range c.HookAllowedCIDRs {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid hookAllowedCIDRs entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid hookAllowedCIDRs entry %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

// Validate checks the parts of the configuration that must be correct before
// the service starts.
func (c *Config) Validate() error {
	if _, err := c.ParseHookAllowedCIDRs(); err != nil {
		return err
	}
	if c.TrashRetentionDays < 0 {
		return fmt.Errorf("trashRetentionDays must not be negative")
	}
	return c.Settings.Validate()
}
