// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
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
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	MetricsEnabled bool `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	DatabaseEngine         string `toml:"databaseEngine" mapstructure:"databaseEngine"`
	DatabasePath           string `toml:"databasePath" mapstructure:"databasePath"`
	DatabaseDSN            string `toml:"databaseDsn" mapstructure:"databaseDsn"`
	DatabaseHost           string `toml:"databaseHost" mapstructure:"databaseHost"`
	DatabasePort           int    `toml:"databasePort" mapstructure:"databasePort"`
	DatabaseUser           string `toml:"databaseUser" mapstructure:"databaseUser"`
	DatabasePassword       string `toml:"databasePassword" mapstructure:"databasePassword"`
	DatabaseName           string `toml:"databaseName" mapstructure:"databaseName"`
	DatabaseSSLMode        string `toml:"databaseSslMode" mapstructure:"databaseSslMode"`
	DatabaseConnectTimeout int    `toml:"databaseConnectTimeout" mapstructure:"databaseConnectTimeout"`
	DatabaseMaxOpenConns   int    `toml:"databaseMaxOpenConns" mapstructure:"databaseMaxOpenConns"`

	// NotifyURLs are shoutrrr service URLs that receive renewal reminders.
	// Reminders are only logged when empty.
	NotifyURLs []string `toml:"notifyUrls" mapstructure:"notifyUrls"`

	// TrustedProxyCIDRs lists the reverse proxies allowed to assert the
	// acting user through identity headers. Requests from anywhere else are
	// rejected by the API.
	TrustedProxyCIDRs []string `toml:"trustedProxyCidrs" mapstructure:"trustedProxyCidrs"`
}

// ParseTrustedProxyCIDRs parses configured proxy IP ranges.
// Entries can be either CIDR (for example 10.0.0.0/8) or a single IP
// (for example 127.0.0.1, which is treated as /32 or /128).
func (c *Config) ParseTrustedProxyCIDRs() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxyCIDRs))

	for _, raw := range c.TrustedProxyCIDRs {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trustedProxyCidrs entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trustedProxyCidrs entry %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	prefixes, err := c.ParseTrustedProxyCIDRs()
	if err != nil {
		return err
	}
	if len(prefixes) == 0 {
		return errors.New("trustedProxyCidrs is required to accept identity headers")
	}

	return nil
}
