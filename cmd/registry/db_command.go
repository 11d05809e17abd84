// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/pluginstore/registry/internal/database"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBMigrateCommand())
	return cmd
}

func runDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			// opening the database applies migrations
			db, err := database.OpenFromConfig(cfg.Config)
			if err != nil {
				return err
			}
			defer db.Close()

			cmd.Printf("Database migrated (%s)\n", db.Dialect())
			if db.Dialect() == "sqlite" {
				cmd.Printf("Path: %s\n", cfg.Config.DatabasePath)
			}
			return nil
		},
	}
}
