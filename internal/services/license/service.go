// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/dbinterface"
	"github.com/pluginstore/registry/internal/domain"
	"github.com/pluginstore/registry/internal/metrics"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/notifications"
)

const (
	// RenewalHorizonDays bounds ListRenewable and CountExpiringSoon.
	RenewalHorizonDays = 45
	// ReminderWindowStartDays and ReminderWindowEndDays bound the calendar
	// days, counted from today, whose expiring licenses get a reminder.
	ReminderWindowStartDays = 14
	ReminderWindowEndDays   = 30

	// generatedKeyAttempts bounds how often Save draws a fresh key after a
	// generated one collided on insert.
	generatedKeyAttempts = 3
)

// Notifier delivers renewal reminders.
type Notifier interface {
	SendRenewalReminder(ctx context.Context, reminder notifications.Reminder) error
}

// Service handles plugin license operations
type Service struct {
	db       dbinterface.TxBeginner
	licenses *models.PluginLicenseStore
	history  *models.LicenseHistoryStore
	plugins  *models.PluginStore
	editions *models.EditionStore
	cms      *models.CmsLicenseStore
	notifier Notifier
	metrics  *metrics.LicenseMetrics
	now      func() time.Time
	newKey   func() (string, error)
}

// NewService creates a new license service. notifier and m may be nil.
func NewService(db dbinterface.TxBeginner, notifier Notifier, m *metrics.LicenseMetrics) *Service {
	return &Service{
		db:       db,
		licenses: models.NewPluginLicenseStore(db),
		history:  models.NewLicenseHistoryStore(db),
		plugins:  models.NewPluginStore(db),
		editions: models.NewEditionStore(db),
		cms:      models.NewCmsLicenseStore(db),
		notifier: notifier,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newKey:   models.GenerateKey,
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LookupOptions narrows GetLicenseByKey.
type LookupOptions struct {
	// PluginHandle restricts the match to one plugin when set.
	PluginHandle string
	// IncludeDisabled also matches licenses of disabled plugins or editions.
	IncludeDisabled bool
}

// GetLicenseByKey returns the license for key. Malformed keys are reported as
// models.ErrLicenseNotFound. A PluginHandle that matches no plugin yields
// models.ErrInvalidPluginHandle.
func (s *Service) GetLicenseByKey(ctx context.Context, key string, opts LookupOptions) (*models.PluginLicense, error) {
	normalized, err := models.NormalizeKey(key)
	if err != nil {
		return nil, models.ErrLicenseNotFound
	}

	lookup := models.KeyLookup{IncludeDisabled: opts.IncludeDisabled}
	if handle := strings.TrimSpace(opts.PluginHandle); handle != "" {
		plugin, err := s.plugins.GetByHandle(ctx, handle, true)
		if err != nil {
			if errors.Is(err, models.ErrPluginNotFound) {
				return nil, errors.Wrapf(models.ErrInvalidPluginHandle, "%q", handle)
			}
			return nil, errors.Wrap(err, "failed to resolve plugin")
		}
		lookup.PluginID = plugin.ID
	}

	return s.licenses.GetByKey(ctx, normalized, lookup)
}

func (s *Service) GetLicenseByID(ctx context.Context, id int64) (*models.PluginLicense, error) {
	return s.licenses.Get(ctx, id)
}

// ListByOwner returns a page of the owner's licenses and the total match count.
func (s *Service) ListByOwner(ctx context.Context, ownerID int64, opts models.ListOptions) ([]*models.PluginLicense, int, error) {
	return s.licenses.ListByOwner(ctx, ownerID, opts)
}

func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]*models.PluginLicense, error) {
	return s.licenses.ListByOrder(ctx, orderID)
}

func (s *Service) ListByCmsLicense(ctx context.Context, cmsLicenseID int64) ([]*models.PluginLicense, error) {
	return s.licenses.ListByCmsLicense(ctx, cmsLicenseID)
}

// ListByDeveloper lists licenses of a developer's plugins. opts.Condition is
// trusted SQL and must never be built from request input.
func (s *Service) ListByDeveloper(ctx context.Context, developerID int64, opts models.DeveloperListOptions) ([]*models.PluginLicense, int, error) {
	return s.licenses.ListByDeveloper(ctx, developerID, opts)
}

// ListRenewable returns the owner's licenses that expire within the renewal
// horizon, including those already past their date.
func (s *Service) ListRenewable(ctx context.Context, ownerID int64) ([]*models.PluginLicense, error) {
	return s.licenses.ListExpiringBefore(ctx, ownerID, s.now().AddDate(0, 0, RenewalHorizonDays))
}

// ListRemindable returns expirable, unreminded licenses expiring on any
// calendar day (UTC) from today+14 through today+30.
func (s *Service) ListRemindable(ctx context.Context) ([]*models.PluginLicense, error) {
	today := startOfDay(s.now())
	return s.licenses.ListRemindable(ctx,
		today.AddDate(0, 0, ReminderWindowStartDays),
		today.AddDate(0, 0, ReminderWindowEndDays+1))
}

// ListFreshlyExpired returns expirable licenses not yet flagged expired whose
// date falls before tomorrow (UTC).
func (s *Service) ListFreshlyExpired(ctx context.Context) ([]*models.PluginLicense, error) {
	return s.licenses.ListExpiredBefore(ctx, startOfDay(s.now()).AddDate(0, 0, 1))
}

// CountExpiringSoon counts the owner's licenses that will need a manual
// renewal within the renewal horizon.
func (s *Service) CountExpiringSoon(ctx context.Context, ownerID int64) (int, error) {
	return s.licenses.CountExpiringBefore(ctx, ownerID, s.now().AddDate(0, 0, RenewalHorizonDays))
}

// Save inserts or updates a license.
//
// With runValidation set, a license that breaks a field rule is not written:
// Save returns false with a nil error and leaves the failures on l.Errors.
// Handle resolution failures are returned as models.ErrInvalidPluginHandle or
// models.ErrInvalidEditionHandle. A write rejected by the store is returned as
// a *models.PersistenceError.
func (s *Service) Save(ctx context.Context, l *models.PluginLicense, runValidation bool) (bool, error) {
	now := s.now()
	l.Errors = nil

	generated := l.ID == 0 && strings.TrimSpace(l.Key) == ""
	if generated {
		key, err := s.newKey()
		if err != nil {
			return false, err
		}
		l.Key = key
	}
	if normalized, err := models.NormalizeKey(l.Key); err == nil {
		l.Key = normalized
	} else if !runValidation {
		return false, err
	}

	if runValidation {
		errs := models.ValidateLicense(l)
		// generated keys are checked by the insert itself
		if !generated && !errs.Has("key") {
			taken, err := s.licenses.KeyExists(ctx, l.Key, l.ID)
			if err != nil {
				return false, errors.Wrap(err, "failed to check license key")
			}
			if taken {
				errs.Add("key", "is already in use")
			}
		}
		if len(errs) > 0 {
			l.Errors = errs
			log.Debug().
				Str("licenseKey", domain.MaskLicenseKey(l.Key)).
				Int("errors", len(errs)).
				Msg("License failed validation")
			return false, nil
		}
	}

	if l.PluginID == 0 {
		plugin, err := s.plugins.GetByHandle(ctx, l.PluginHandle, true)
		if err != nil {
			if errors.Is(err, models.ErrPluginNotFound) {
				return false, errors.Wrapf(models.ErrInvalidPluginHandle, "%q", l.PluginHandle)
			}
			return false, errors.Wrap(err, "failed to resolve plugin")
		}
		l.PluginID = plugin.ID
		l.PluginHandle = plugin.Handle
	}

	var edition *models.Edition
	if l.EditionID == 0 {
		resolved, err := s.editions.GetByHandle(ctx, l.PluginID, l.Edition)
		if err != nil {
			if errors.Is(err, models.ErrEditionNotFound) {
				return false, errors.Wrapf(models.ErrInvalidEditionHandle, "%q", l.Edition)
			}
			return false, errors.Wrap(err, "failed to resolve edition")
		}
		edition = resolved
		l.EditionID = edition.ID
		l.Edition = edition.Handle
	}

	if l.Expirable && l.RenewalPrice == nil {
		if edition == nil {
			resolved, err := s.editions.Get(ctx, l.EditionID)
			if err != nil {
				if errors.Is(err, models.ErrEditionNotFound) {
					return false, errors.Wrapf(models.ErrInvalidEditionHandle, "edition %d", l.EditionID)
				}
				return false, errors.Wrap(err, "failed to load edition")
			}
			edition = resolved
		}
		price := edition.RenewalPrice
		l.RenewalPrice = &price
	}
	if !l.Expirable {
		l.RenewalPrice = nil
	}

	l.DateUpdated = now
	if l.ID == 0 {
		if l.DateCreated.IsZero() {
			l.DateCreated = now
		}
		if err := s.insert(ctx, l, generated); err != nil {
			return false, &models.PersistenceError{Op: "insert", Err: err}
		}
		log.Info().
			Str("licenseKey", domain.MaskLicenseKey(l.Key)).
			Int64("licenseId", l.ID).
			Msg("License created")
		return true, nil
	}

	if err := s.licenses.Update(ctx, l); err != nil {
		if errors.Is(err, models.ErrLicenseNotFound) {
			return false, err
		}
		return false, &models.PersistenceError{Op: "update", Err: err}
	}
	log.Debug().
		Str("licenseKey", domain.MaskLicenseKey(l.Key)).
		Int64("licenseId", l.ID).
		Msg("License updated")
	return true, nil
}

// insert stores l. A generated key that collides with an existing one is
// replaced and the insert retried.
func (s *Service) insert(ctx context.Context, l *models.PluginLicense, generated bool) error {
	for attempt := 1; ; attempt++ {
		err := s.licenses.Insert(ctx, l)
		if err == nil || !generated || attempt == generatedKeyAttempts || !errors.Is(err, models.ErrDuplicateLicenseKey) {
			return err
		}

		log.Warn().
			Str("licenseKey", domain.MaskLicenseKey(l.Key)).
			Int("attempt", attempt).
			Msg("Generated license key already exists, drawing a new one")

		key, keyErr := s.newKey()
		if keyErr != nil {
			return keyErr
		}
		l.Key = key
	}
}

// AddHistory appends a note to a license. A zero at records the current time.
func (s *Service) AddHistory(ctx context.Context, licenseID int64, note string, at time.Time) (*models.LicenseHistoryEntry, error) {
	if at.IsZero() {
		at = s.now()
	}
	return s.history.Add(ctx, licenseID, note, at)
}

// GetHistory returns a license's history, oldest first.
func (s *Service) GetHistory(ctx context.Context, licenseID int64) ([]*models.LicenseHistoryEntry, error) {
	return s.history.List(ctx, licenseID)
}

func (s *Service) DeleteByID(ctx context.Context, id int64) error {
	if err := s.licenses.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Int64("licenseId", id).Msg("License deleted successfully")
	return nil
}

// DeleteByKey removes a license. Malformed keys are reported as not found.
func (s *Service) DeleteByKey(ctx context.Context, key string) error {
	normalized, err := models.NormalizeKey(key)
	if err != nil {
		return models.ErrLicenseNotFound
	}

	if err := s.licenses.DeleteByKey(ctx, normalized); err != nil {
		return err
	}

	log.Info().
		Str("licenseKey", domain.MaskLicenseKey(normalized)).
		Msg("License deleted successfully")
	return nil
}

// MarkReminded flags a license as reminded. It reports whether the flag changed.
func (s *Service) MarkReminded(ctx context.Context, id int64) (bool, error) {
	return s.licenses.MarkReminded(ctx, id, s.now())
}

// MarkExpired flags a license as expired. It reports whether the flag changed.
func (s *Service) MarkExpired(ctx context.Context, id int64) (bool, error) {
	return s.licenses.MarkExpired(ctx, id, s.now())
}

// RecordActivity stores the version a license was last seen running. Versions
// that are not semantic versions are rejected with models.ErrInvalidVersion.
func (s *Service) RecordActivity(ctx context.Context, key, version string) error {
	normalized, err := models.NormalizeKey(key)
	if err != nil {
		return models.ErrLicenseNotFound
	}
	canonical, err := normalizeVersion(version)
	if err != nil {
		return err
	}
	return s.licenses.RecordActivity(ctx, normalized, canonical, s.now())
}

// LinkOrder records the order that issued a license.
func (s *Service) LinkOrder(ctx context.Context, licenseID, orderID int64) error {
	return s.licenses.LinkOrder(ctx, licenseID, orderID, s.now())
}
