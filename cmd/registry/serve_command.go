// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pluginstore/registry/internal/api"
)

func RunServeCommand() *cobra.Command {
	var sweepInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registry API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.cfg.Config.Validate(); err != nil {
				return err
			}
			rt.cfg.WatchLogLevel()

			log.Info().
				Str("version", rt.cfg.Config.Version).
				Str("config", rt.cfg.ConfigPath()).
				Str("engine", rt.db.Dialect()).
				Msg("Starting plugin license registry")

			server := api.NewServer(&api.Dependencies{
				Config:         rt.cfg,
				LicenseService: rt.licenses,
				MetricsManager: rt.metrics,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return server.ListenAndServe(ctx)
			})
			if sweepInterval > 0 {
				g.Go(func() error {
					runPeriodicSweeps(ctx, rt.licenses, sweepInterval)
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 0, "Run reminder and expiration sweeps on this interval (0 disables)")
	return cmd
}
