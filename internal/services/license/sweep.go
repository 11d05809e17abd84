// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/dbinterface"
	"github.com/pluginstore/registry/internal/domain"
	"github.com/pluginstore/registry/internal/metrics"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/notifications"
)

// ErrNoNotifier is returned by RunReminderSweep when the service has no
// notifier to deliver reminders with.
var ErrNoNotifier = errors.New("no reminder notifier configured")

const reminderDispatchedNote = "renewal reminder dispatched"

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
}

// RunReminderSweep sends a renewal reminder for every remindable license and
// flags it as reminded once delivery succeeded. Licenses whose delivery
// failed stay unflagged and are retried on the next run.
func (s *Service) RunReminderSweep(ctx context.Context) (SweepResult, error) {
	if s.notifier == nil {
		return SweepResult{}, ErrNoNotifier
	}

	started := s.now()
	candidates, err := s.ListRemindable(ctx)
	if err != nil {
		return SweepResult{}, errors.Wrap(err, "failed to list remindable licenses")
	}

	result := SweepResult{Candidates: len(candidates)}
	defer func() {
		s.metrics.ObserveSweep(metrics.SweepReminders, result.Processed, result.Failed, s.now().Sub(started))
	}()

	for _, license := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := s.notifier.SendRenewalReminder(ctx, reminderFor(license)); err != nil {
			if errors.Is(err, notifications.ErrNoTargets) {
				return result, err
			}
			result.Failed++
			log.Error().
				Err(err).
				Str("licenseKey", domain.MaskLicenseKey(license.Key)).
				Msg("Failed to send renewal reminder")
			continue
		}

		flipped, err := s.flagWithHistory(ctx, license, reminderDispatchedNote,
			(*models.PluginLicenseStore).MarkReminded)
		if err != nil {
			result.Failed++
			log.Error().
				Err(err).
				Int64("licenseId", license.ID).
				Msg("Failed to mark license reminded")
			continue
		}
		if flipped {
			result.Processed++
		}
	}

	log.Info().
		Int("candidates", result.Candidates).
		Int("reminded", result.Processed).
		Int("failed", result.Failed).
		Msg("Reminder sweep finished")

	return result, nil
}

// RunExpirationSweep flags every freshly expired license as expired.
func (s *Service) RunExpirationSweep(ctx context.Context) (SweepResult, error) {
	started := s.now()
	candidates, err := s.ListFreshlyExpired(ctx)
	if err != nil {
		return SweepResult{}, errors.Wrap(err, "failed to list expired licenses")
	}

	result := SweepResult{Candidates: len(candidates)}
	defer func() {
		s.metrics.ObserveSweep(metrics.SweepExpiration, result.Processed, result.Failed, s.now().Sub(started))
	}()

	for _, license := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		flipped, err := s.flagWithHistory(ctx, license, "expired", (*models.PluginLicenseStore).MarkExpired)
		if err != nil {
			result.Failed++
			log.Error().
				Err(err).
				Int64("licenseId", license.ID).
				Msg("Failed to mark license expired")
			continue
		}
		if flipped {
			result.Processed++
		}
	}

	log.Info().
		Int("candidates", result.Candidates).
		Int("expired", result.Processed).
		Int("failed", result.Failed).
		Msg("Expiration sweep finished")

	return result, nil
}

type flagFunc func(store *models.PluginLicenseStore, ctx context.Context, id int64, now time.Time) (bool, error)

// flagWithHistory flips a one-way flag and, when it changed, appends note in
// the same transaction.
func (s *Service) flagWithHistory(ctx context.Context, license *models.PluginLicense, note string, flag flagFunc) (bool, error) {
	now := s.now()
	var flipped bool
	err := dbinterface.WithTx(ctx, s.db, func(tx dbinterface.TxQuerier) error {
		changed, err := flag(models.NewPluginLicenseStore(tx), ctx, license.ID, now)
		if err != nil || !changed {
			return err
		}
		if _, err := models.NewLicenseHistoryStore(tx).Add(ctx, license.ID, note, now); err != nil {
			return err
		}
		flipped = true
		return nil
	})
	return flipped, err
}

func reminderFor(l *models.PluginLicense) notifications.Reminder {
	r := notifications.Reminder{
		Key:       l.Key,
		Email:     l.Email,
		Plugin:    l.PluginHandle,
		Edition:   l.Edition,
		AutoRenew: l.AutoRenew,
	}
	if l.ExpiresOn != nil {
		r.ExpiresOn = *l.ExpiresOn
	}
	if l.RenewalPrice != nil {
		r.RenewalPrice = l.RenewalPrice.StringFixed(2)
	}
	return r
}
