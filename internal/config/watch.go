// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WatchLogLevel reapplies logLevel whenever config.toml changes on disk.
// Other keys need a restart.
func (c *AppConfig) WatchLogLevel() {
	c.viper.OnConfigChange(c.handleConfigChange)
	c.viper.WatchConfig()
}

func (c *AppConfig) handleConfigChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	raw := c.viper.GetString("logLevel")
	level, err := parseLogLevel(raw)
	if err != nil {
		log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring config change")
		return
	}
	if strings.EqualFold(raw, c.Config.LogLevel) && zerolog.GlobalLevel() == level {
		return
	}

	c.Config.LogLevel = raw
	zerolog.SetGlobalLevel(level)
	log.Info().Str("level", level.String()).Msg("Log level reloaded")
}
