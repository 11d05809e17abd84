// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/pluginstore/registry/internal/dbinterface"
)

// CmsLicense is the parent platform license a plugin license can hang off.
type CmsLicense struct {
	OwnerID       *int64 `json:"ownerId,omitempty"`
	Key           string `json:"key"`
	EditionHandle string `json:"edition"`
	Email         string `json:"email"`
	ID            int64  `json:"id"`
}

type CmsLicenseStore struct {
	db dbinterface.Querier
}

func NewCmsLicenseStore(db dbinterface.Querier) *CmsLicenseStore {
	return &CmsLicenseStore{db: db}
}

func (s *CmsLicenseStore) Get(ctx context.Context, id int64) (*CmsLicense, error) {
	var (
		c       CmsLicense
		ownerID sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, license_key, edition_handle, email FROM cms_licenses WHERE id = ?", id).
		Scan(&c.ID, &ownerID, &c.Key, &c.EditionHandle, &c.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCmsLicenseNotFound
		}
		return nil, err
	}

	if ownerID.Valid {
		c.OwnerID = &ownerID.Int64
	}
	return &c, nil
}

func (s *CmsLicenseStore) Create(ctx context.Context, c *CmsLicense) error {
	id, err := dbinterface.InsertReturningID(ctx, s.db,
		"INSERT INTO cms_licenses (owner_id, license_key, edition_handle, email) VALUES (?, ?, ?, ?)",
		nullableInt64(c.OwnerID), c.Key, c.EditionHandle, c.Email)
	if err != nil {
		return errors.Wrap(err, "failed to create cms license")
	}

	c.ID = id
	return nil
}
