// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pluginstore/registry/internal/models"
)

// maxExpiryOptionYears is how many yearly extension choices are offered.
const maxExpiryOptionYears = 5

// View is a license projected for one viewer. It is either a *FullView or a
// *RedactedView.
type View interface {
	IsFull() bool
}

type PluginSummary struct {
	Name                string `json:"name"`
	Handle              string `json:"handle"`
	HasMultipleEditions bool   `json:"hasMultipleEditions"`
}

type EditionSummary struct {
	Price        decimal.Decimal `json:"price"`
	RenewalPrice decimal.Decimal `json:"renewalPrice"`
	Handle       string          `json:"handle"`
	Name         string          `json:"name"`
	ID           int64           `json:"id"`
}

type HistoryItem struct {
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// Enrichment is shown to owners and non-owners alike.
type Enrichment struct {
	Plugin  PluginSummary  `json:"pluginInfo"`
	Edition EditionSummary `json:"editionDetails"`
	History []HistoryItem  `json:"history"`
}

// ExpiryDateOption is one choice for extending a license.
type ExpiryDateOption struct {
	Date time.Time `json:"date"`
	Key  string    `json:"key"`
}

// CmsLicenseView is either a *FullCmsLicense or a *ShortCmsLicense.
type CmsLicenseView interface {
	isCmsLicenseView()
}

type FullCmsLicense struct {
	Key     string `json:"key"`
	Edition string `json:"edition"`
	Email   string `json:"email"`
	ID      int64  `json:"id"`
}

func (*FullCmsLicense) isCmsLicenseView() {}

type ShortCmsLicense struct {
	ShortKey string `json:"shortKey"`
	Edition  string `json:"edition"`
}

func (*ShortCmsLicense) isCmsLicenseView() {}

// FullView is what the owner of a license sees. Private notes never leave
// the registry.
type FullView struct {
	Enrichment

	DateCreated        time.Time          `json:"dateCreated"`
	DateUpdated        time.Time          `json:"dateUpdated"`
	ExpiresOn          *time.Time         `json:"expiresOn"`
	LastActivityOn     *time.Time         `json:"lastActivityOn"`
	LastRenewedOn      *time.Time         `json:"lastRenewedOn"`
	RenewalPrice       *decimal.Decimal   `json:"renewalPrice"`
	OwnerID            *int64             `json:"ownerId"`
	CmsLicenseID       *int64             `json:"cmsLicenseId"`
	LastVersion        *string            `json:"lastVersion"`
	LastAllowedVersion *string            `json:"lastAllowedVersion"`
	CmsLicense         CmsLicenseView     `json:"cmsLicense,omitempty"`
	Key                string             `json:"key"`
	Email              string             `json:"email"`
	Notes              string             `json:"notes"`
	PluginHandle       string             `json:"plugin"`
	Edition            string             `json:"edition"`
	ExpiryDateOptions  []ExpiryDateOption `json:"expiryDateOptions"`
	ID                 int64              `json:"id"`
	PluginID           int64              `json:"pluginId"`
	EditionID          int64              `json:"editionId"`
	Expirable          bool               `json:"expirable"`
	Expired            bool               `json:"expired"`
	AutoRenew          bool               `json:"autoRenew"`
	Reminded           bool               `json:"reminded"`

	// WithinAllowedVersion is nil when either version is unknown.
	WithinAllowedVersion *bool `json:"withinAllowedVersion,omitempty"`
}

func (*FullView) IsFull() bool { return true }

// RedactedView is what anyone but the owner sees.
type RedactedView struct {
	Enrichment

	ShortKey string `json:"shortKey"`
}

func (*RedactedView) IsFull() bool { return false }

// TransformForOwner projects a license for owner. Only the license owner gets
// the full key, email and notes. The linked CMS license is shown in full only
// when owner also owns it.
func (s *Service) TransformForOwner(ctx context.Context, l *models.PluginLicense, owner models.User) (View, error) {
	enrichment, err := s.enrich(ctx, l)
	if err != nil {
		return nil, err
	}

	if !l.IsOwnedBy(owner.ID) {
		return &RedactedView{Enrichment: enrichment, ShortKey: l.ShortKey()}, nil
	}

	view := &FullView{
		Enrichment:         enrichment,
		ID:                 l.ID,
		PluginID:           l.PluginID,
		EditionID:          l.EditionID,
		OwnerID:            l.OwnerID,
		CmsLicenseID:       l.CmsLicenseID,
		Key:                l.Key,
		Email:              l.Email,
		Notes:              l.Notes,
		PluginHandle:       l.PluginHandle,
		Edition:            l.Edition,
		Expirable:          l.Expirable,
		ExpiresOn:          l.ExpiresOn,
		Expired:            l.Expired,
		AutoRenew:          l.AutoRenew,
		Reminded:           l.Reminded,
		RenewalPrice:       l.RenewalPrice,
		LastVersion:        l.LastVersion,
		LastAllowedVersion: l.LastAllowedVersion,
		LastActivityOn:     l.LastActivityOn,
		LastRenewedOn:      l.LastRenewedOn,
		DateCreated:        l.DateCreated,
		DateUpdated:        l.DateUpdated,
		ExpiryDateOptions:  expiryDateOptions(l, s.now()),
	}
	view.WithinAllowedVersion = withinAllowedVersion(l.LastVersion, l.LastAllowedVersion)

	if l.CmsLicenseID != nil {
		cms, err := s.cms.Get(ctx, *l.CmsLicenseID)
		switch {
		case errors.Is(err, models.ErrCmsLicenseNotFound):
		case err != nil:
			return nil, errors.Wrap(err, "failed to load cms license")
		case cms.OwnerID != nil && *cms.OwnerID == owner.ID:
			view.CmsLicense = &FullCmsLicense{ID: cms.ID, Key: cms.Key, Edition: cms.EditionHandle, Email: cms.Email}
		default:
			view.CmsLicense = &ShortCmsLicense{ShortKey: models.ShortKey(cms.Key), Edition: cms.EditionHandle}
		}
	}

	return view, nil
}

func (s *Service) enrich(ctx context.Context, l *models.PluginLicense) (Enrichment, error) {
	plugin, err := s.plugins.Get(ctx, l.PluginID)
	if err != nil {
		return Enrichment{}, errors.Wrapf(err, "failed to load plugin %d", l.PluginID)
	}

	edition, err := s.editions.Get(ctx, l.EditionID)
	if err != nil {
		return Enrichment{}, errors.Wrapf(err, "failed to load edition %d", l.EditionID)
	}

	entries, err := s.history.List(ctx, l.ID)
	if err != nil {
		return Enrichment{}, err
	}

	history := make([]HistoryItem, 0, len(entries))
	for _, entry := range entries {
		history = append(history, HistoryItem{Note: entry.Note, Timestamp: entry.Timestamp})
	}

	return Enrichment{
		Plugin: PluginSummary{
			Name:                plugin.Name,
			Handle:              plugin.Handle,
			HasMultipleEditions: plugin.HasMultipleEditions,
		},
		Edition: EditionSummary{
			ID:           edition.ID,
			Handle:       edition.Handle,
			Name:         edition.Name,
			Price:        edition.Price,
			RenewalPrice: edition.RenewalPrice,
		},
		History: history,
	}, nil
}

// expiryDateOptions offers 1 to 5 year extensions counted from the later of
// the current expiry date and today.
func expiryDateOptions(l *models.PluginLicense, now time.Time) []ExpiryDateOption {
	options := make([]ExpiryDateOption, 0, maxExpiryOptionYears)
	if !l.Expirable || l.ExpiresOn == nil {
		return options
	}

	base := startOfDay(now)
	if l.ExpiresOn.After(base) {
		base = l.ExpiresOn.UTC()
	}

	for years := 1; years <= maxExpiryOptionYears; years++ {
		options = append(options, ExpiryDateOption{
			Key:  fmt.Sprintf("%dy", years),
			Date: base.AddDate(years, 0, 0),
		})
	}
	return options
}
