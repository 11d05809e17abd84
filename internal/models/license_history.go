// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pluginstore/registry/internal/dbinterface"
)

// LicenseHistoryEntry is one append-only note on a license's timeline.
type LicenseHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
	ID        int64     `json:"id"`
	LicenseID int64     `json:"licenseId"`
}

type LicenseHistoryStore struct {
	db dbinterface.Querier
}

func NewLicenseHistoryStore(db dbinterface.Querier) *LicenseHistoryStore {
	return &LicenseHistoryStore{db: db}
}

// Add appends a note recorded at the given time.
func (s *LicenseHistoryStore) Add(ctx context.Context, licenseID int64, note string, at time.Time) (*LicenseHistoryEntry, error) {
	at = at.UTC()

	id, err := dbinterface.InsertReturningID(ctx, s.db,
		"INSERT INTO plugin_license_history (license_id, note, recorded_at) VALUES (?, ?, ?)",
		licenseID, note, at)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return nil, ErrLicenseNotFound
		}
		return nil, errors.Wrapf(err, "failed to add history to license %d", licenseID)
	}

	return &LicenseHistoryEntry{ID: id, LicenseID: licenseID, Note: note, Timestamp: at}, nil
}

// List returns a license's history, oldest first.
func (s *LicenseHistoryStore) List(ctx context.Context, licenseID int64) ([]*LicenseHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, license_id, note, recorded_at FROM plugin_license_history WHERE license_id = ? ORDER BY recorded_at ASC, id ASC",
		licenseID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list history of license %d", licenseID)
	}
	defer rows.Close()

	entries := make([]*LicenseHistoryEntry, 0)
	for rows.Next() {
		var entry LicenseHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.LicenseID, &entry.Note, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
