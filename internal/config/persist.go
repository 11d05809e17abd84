// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var tomlTableHeader = regexp.MustCompile(`^\s*\[`)

func tomlKeyLine(key string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*#?\s*` + regexp.QuoteMeta(key) + `\s*=`)
}

// UpdateLogSettings rewrites the log settings in the config file, keeping
// comments and layout, and applies them to the loaded config.
func (c *AppConfig) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	level = strings.ToUpper(strings.TrimSpace(level))
	if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil || level == "" {
		return fmt.Errorf("invalid log level %q", level)
	}
	if maxSize <= 0 {
		return fmt.Errorf("invalid logMaxSize %d", maxSize)
	}
	if maxBackups < 0 {
		return fmt.Errorf("invalid logMaxBackups %d", maxBackups)
	}

	raw, err := os.ReadFile(c.configPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", c.configPath)
	}

	updated := updateLogSettingsInTOML(string(raw), level, path, maxSize, maxBackups)
	if err := os.WriteFile(c.configPath, []byte(updated), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config %s", c.configPath)
	}

	c.Config.LogLevel = level
	c.Config.LogPath = path
	c.Config.LogMaxSize = maxSize
	c.Config.LogMaxBackups = maxBackups
	return nil
}

// updateLogSettingsInTOML sets the log keys of the root table. Keys that are
// present, commented out or not, are replaced in place. Missing keys are
// added before the first table header.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	settings := []struct {
		key  string
		line string
	}{
		{"logPath", fmt.Sprintf("logPath = %q", path)},
		{"logMaxSize", fmt.Sprintf("logMaxSize = %d", maxSize)},
		{"logMaxBackups", fmt.Sprintf("logMaxBackups = %d", maxBackups)},
		{"logLevel", fmt.Sprintf("logLevel = %q", level)},
	}
	if path == "" {
		settings[0].line = `#logPath = ""`
	}

	lines := strings.Split(content, "\n")
	rootEnd := len(lines)
	for i, line := range lines {
		if tomlTableHeader.MatchString(line) {
			rootEnd = i
			break
		}
	}

	var missing []string
	for _, setting := range settings {
		pattern := tomlKeyLine(setting.key)
		found := false
		for i := 0; i < rootEnd; i++ {
			if pattern.MatchString(lines[i]) {
				lines[i] = setting.line
				found = true
			}
		}
		if !found {
			missing = append(missing, setting.line)
		}
	}

	if len(missing) == 0 {
		return strings.Join(lines, "\n")
	}

	block := append([]string{"# Log settings"}, missing...)
	block = append(block, "")

	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:rootEnd]...)
	out = append(out, block...)
	out = append(out, lines[rootEnd:]...)
	return strings.Join(out, "\n")
}
