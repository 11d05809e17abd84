// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/dbinterface"
	"github.com/pluginstore/registry/internal/domain"
	"github.com/pluginstore/registry/internal/metrics"
	"github.com/pluginstore/registry/internal/models"
)

func claimNote(email string) string {
	return "claimed by " + email
}

// ClaimLicense assigns an unowned license to user. The ownership change and
// its history entry commit together. A license that already has an owner
// yields models.ErrAlreadyClaimed, including when two claims race. A user
// without a valid email gets models.ValidationErrors and nothing is written.
func (s *Service) ClaimLicense(ctx context.Context, user models.User, key string) (*models.PluginLicense, error) {
	user.Email = strings.TrimSpace(user.Email)
	if errs := models.ValidateEmail(user.Email); errs != nil {
		return nil, errs
	}

	license, err := s.GetLicenseByKey(ctx, key, LookupOptions{})
	if err != nil {
		if errors.Is(err, models.ErrLicenseNotFound) {
			s.metrics.ObserveClaim(metrics.ClaimResultNotFound)
		}
		return nil, err
	}

	now := s.now()
	err = dbinterface.WithTx(ctx, s.db, func(tx dbinterface.TxQuerier) error {
		claimed, err := models.NewPluginLicenseStore(tx).ClaimIfUnowned(ctx, license.ID, user, now)
		if err != nil {
			return err
		}
		if !claimed {
			return models.ErrAlreadyClaimed
		}

		_, err = models.NewLicenseHistoryStore(tx).Add(ctx, license.ID, claimNote(user.Email), now)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyClaimed) {
			s.metrics.ObserveClaim(metrics.ClaimResultAlreadyClaimed)
			log.Debug().
				Str("licenseKey", domain.MaskLicenseKey(license.Key)).
				Int64("userId", user.ID).
				Msg("License claim rejected, already owned")
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to claim license")
	}

	s.metrics.ObserveClaim(metrics.ClaimResultClaimed)
	log.Info().
		Str("licenseKey", domain.MaskLicenseKey(license.Key)).
		Int64("userId", user.ID).
		Msg("License claimed")

	return s.licenses.Get(ctx, license.ID)
}

// ClaimLicensesByEmail assigns every unowned license whose email matches
// (case-insensitively) to user and returns how many were claimed. An empty
// email falls back to the user's own address.
func (s *Service) ClaimLicensesByEmail(ctx context.Context, user models.User, email string) (int, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		email = user.Email
	}
	if email == "" {
		return 0, nil
	}

	now := s.now()
	var claimed []int64
	err := dbinterface.WithTx(ctx, s.db, func(tx dbinterface.TxQuerier) error {
		ids, err := models.NewPluginLicenseStore(tx).ClaimByEmail(ctx, user.ID, email, now)
		if err != nil {
			return err
		}

		history := models.NewLicenseHistoryStore(tx)
		for _, id := range ids {
			if _, err := history.Add(ctx, id, claimNote(user.Email), now); err != nil {
				return err
			}
		}
		claimed = ids
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to claim licenses by email")
	}

	s.metrics.ObserveBulkClaim(len(claimed))
	if len(claimed) > 0 {
		log.Info().
			Int64("userId", user.ID).
			Int("count", len(claimed)).
			Msg("Licenses claimed by email")
	}

	return len(claimed), nil
}
