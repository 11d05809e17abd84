// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pluginstore/registry/internal/services/license"
	"github.com/pluginstore/registry/internal/services/notifications"
)

func RunSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run license maintenance sweeps",
	}

	cmd.AddCommand(newSweepSubcommand("reminders", "Send renewal reminders for licenses expiring in 14 to 30 days",
		true, (*license.Service).RunReminderSweep))
	cmd.AddCommand(newSweepSubcommand("expired", "Flag licenses whose expiry date has passed",
		false, (*license.Service).RunExpirationSweep))
	return cmd
}

type sweepFunc func(*license.Service, context.Context) (license.SweepResult, error)

func newSweepSubcommand(use, short string, needsTargets bool, sweep sweepFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if needsTargets && !rt.notifier.HasTargets() {
				return errors.Wrap(notifications.ErrNoTargets, "set notifyUrls in config.toml or REGISTRY__NOTIFY_URLS")
			}

			result, err := sweep(rt.licenses, cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Sweep %s: candidates=%d processed=%d failed=%d\n",
				use, result.Candidates, result.Processed, result.Failed)
			return nil
		},
	}
}

// runPeriodicSweeps runs both sweeps every interval until ctx is done.
func runPeriodicSweeps(ctx context.Context, svc *license.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := svc.RunExpirationSweep(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled expiration sweep failed")
		}
		if _, err := svc.RunReminderSweep(ctx); err != nil {
			if errors.Is(err, notifications.ErrNoTargets) {
				log.Debug().Msg("Skipping scheduled reminder sweep: no notification targets")
				continue
			}
			log.Error().Err(err).Msg("Scheduled reminder sweep failed")
		}
	}
}
