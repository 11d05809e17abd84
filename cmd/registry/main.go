// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pluginstore/registry/internal/buildinfo"
	"github.com/pluginstore/registry/internal/config"
	"github.com/pluginstore/registry/internal/database"
	"github.com/pluginstore/registry/internal/metrics"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/license"
	"github.com/pluginstore/registry/internal/services/notifications"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "registry",
		Short:         "Plugin license registry",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().String("config-dir", "", "Config directory or config.toml path (default: user config dir)")

	cmd.AddCommand(RunServeCommand())
	cmd.AddCommand(RunSweepCommand())
	cmd.AddCommand(RunDBCommand())
	cmd.AddCommand(RunConfigCommand())
	cmd.AddCommand(RunVersionCommand())
	return cmd
}

// runtime holds what every command that touches licenses needs.
type runtime struct {
	cfg      *config.AppConfig
	db       *database.DB
	metrics  *metrics.Manager
	licenses *license.Service
	notifier *notifications.Service
	logClose io.Closer
}

func loadConfig(cmd *cobra.Command) (*config.AppConfig, io.Closer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfg, err := config.New(configDir)
	if err != nil {
		return nil, nil, err
	}
	cfg.Config.Version = buildinfo.Version

	writer, err := cfg.ApplyLogConfig()
	if err != nil {
		return nil, nil, err
	}
	closer, _ := writer.(io.Closer)
	return cfg, closer, nil
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenFromConfig(cfg.Config)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	manager := metrics.NewManager(models.NewPluginLicenseStore(db))
	notifier := notifications.NewService(cfg.Config.NotifyURLs,
		log.Logger.With().Str("module", "notifications").Logger())

	return &runtime{
		cfg:      cfg,
		db:       db,
		metrics:  manager,
		licenses: license.NewService(db, notifier, manager.License),
		notifier: notifier,
		logClose: closer,
	}, nil
}

func (r *runtime) Close() {
	if err := r.db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
	if r.logClose != nil {
		_ = r.logClose.Close()
	}
}
