// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ApplyLogConfig configures the global logger from the loaded config and
// returns the writer in use. Callers close it on shutdown when it is a file.
func (c *AppConfig) ApplyLogConfig() (io.Writer, error) {
	level, err := parseLogLevel(c.Config.LogLevel)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	writer, err := logWriter(c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups, c.ConfigDir())
	if err != nil {
		return nil, err
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return writer, nil
}

func parseLogLevel(raw string) (zerolog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", raw)
	}
	return level, nil
}

// logWriter logs to stdout unless path is set. Relative paths resolve
// against baseDir.
func logWriter(path string, maxSize, maxBackups int, baseDir string) (io.Writer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, nil
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}, nil
}
