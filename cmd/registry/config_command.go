// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/pluginstore/registry/internal/config"
)

func RunConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change configuration",
	}

	cmd.AddCommand(runConfigLogCommand())
	return cmd
}

func runConfigLogCommand() *cobra.Command {
	var (
		level      string
		path       string
		maxSize    int
		maxBackups int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Persist log settings to config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfg, err := config.New(configDir)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("level") {
				level = cfg.Config.LogLevel
			}
			if !cmd.Flags().Changed("path") {
				path = cfg.Config.LogPath
			}
			if !cmd.Flags().Changed("max-size") {
				maxSize = cfg.Config.LogMaxSize
			}
			if !cmd.Flags().Changed("max-backups") {
				maxBackups = cfg.Config.LogMaxBackups
			}

			if err := cfg.UpdateLogSettings(level, path, maxSize, maxBackups); err != nil {
				return err
			}

			cmd.Printf("Log settings saved to %s\n", cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "Log level (ERROR, WARN, INFO, DEBUG, TRACE)")
	cmd.Flags().StringVar(&path, "path", "", "Log file path, empty logs to stdout")
	cmd.Flags().IntVar(&maxSize, "max-size", 0, "Maximum log file size in megabytes")
	cmd.Flags().IntVar(&maxBackups, "max-backups", 0, "Rotated log files to keep")
	return cmd
}
