// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pluginstore/registry/internal/dbinterface"
)

// Plugin is a catalog entry licenses are issued for.
type Plugin struct {
	CreatedAt           time.Time `json:"createdAt"`
	Handle              string    `json:"handle"`
	Name                string    `json:"name"`
	ID                  int64     `json:"id"`
	DeveloperID         int64     `json:"developerId"`
	Enabled             bool      `json:"enabled"`
	HasMultipleEditions bool      `json:"hasMultipleEditions"`
}

// Edition is a purchasable tier of a plugin.
type Edition struct {
	Price        decimal.Decimal `json:"price"`
	RenewalPrice decimal.Decimal `json:"renewalPrice"`
	Handle       string          `json:"handle"`
	Name         string          `json:"name"`
	ID           int64           `json:"id"`
	PluginID     int64           `json:"pluginId"`
	Enabled      bool            `json:"enabled"`
}

type PluginStore struct {
	db dbinterface.Querier
}

func NewPluginStore(db dbinterface.Querier) *PluginStore {
	return &PluginStore{db: db}
}

const pluginSelect = `
	SELECT p.id, p.developer_id, p.handle, p.name, p.enabled, p.created_at,
		(SELECT COUNT(*) FROM plugin_editions e WHERE e.plugin_id = p.id AND e.enabled = ?)
	FROM plugins p
`

func (s *PluginStore) scan(row *sql.Row) (*Plugin, error) {
	var (
		p        Plugin
		editions int
	)
	if err := row.Scan(&p.ID, &p.DeveloperID, &p.Handle, &p.Name, &p.Enabled, &p.CreatedAt, &editions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPluginNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.HasMultipleEditions = editions > 1
	return &p, nil
}

// Get returns a plugin by id regardless of its enabled state.
func (s *PluginStore) Get(ctx context.Context, id int64) (*Plugin, error) {
	return s.scan(s.db.QueryRowContext(ctx, pluginSelect+" WHERE p.id = ?", true, id))
}

// GetByHandle resolves a plugin handle. Disabled plugins are only returned
// when includeDisabled is set.
func (s *PluginStore) GetByHandle(ctx context.Context, handle string, includeDisabled bool) (*Plugin, error) {
	query := pluginSelect + " WHERE p.handle = ?"
	args := []any{true, handle}
	if !includeDisabled {
		query += " AND p.enabled = ?"
		args = append(args, true)
	}
	return s.scan(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PluginStore) Create(ctx context.Context, p *Plugin) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	id, err := dbinterface.InsertReturningID(ctx, s.db,
		"INSERT INTO plugins (developer_id, handle, name, enabled, created_at) VALUES (?, ?, ?, ?, ?)",
		p.DeveloperID, p.Handle, p.Name, p.Enabled, p.CreatedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to create plugin %s", p.Handle)
	}

	p.ID = id
	return nil
}

func (s *PluginStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx, "UPDATE plugins SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPluginNotFound
	}
	return nil
}

type EditionStore struct {
	db dbinterface.Querier
}

func NewEditionStore(db dbinterface.Querier) *EditionStore {
	return &EditionStore{db: db}
}

const editionSelect = `SELECT id, plugin_id, handle, name, enabled, price, renewal_price FROM plugin_editions`

func (s *EditionStore) scan(row *sql.Row) (*Edition, error) {
	var e Edition
	if err := row.Scan(&e.ID, &e.PluginID, &e.Handle, &e.Name, &e.Enabled, &e.Price, &e.RenewalPrice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEditionNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *EditionStore) Get(ctx context.Context, id int64) (*Edition, error) {
	return s.scan(s.db.QueryRowContext(ctx, editionSelect+" WHERE id = ?", id))
}

// GetByHandle resolves an edition handle within a plugin.
func (s *EditionStore) GetByHandle(ctx context.Context, pluginID int64, handle string) (*Edition, error) {
	return s.scan(s.db.QueryRowContext(ctx, editionSelect+" WHERE plugin_id = ? AND handle = ?", pluginID, handle))
}

func (s *EditionStore) Create(ctx context.Context, e *Edition) error {
	id, err := dbinterface.InsertReturningID(ctx, s.db,
		"INSERT INTO plugin_editions (plugin_id, handle, name, enabled, price, renewal_price) VALUES (?, ?, ?, ?, ?, ?)",
		e.PluginID, e.Handle, e.Name, e.Enabled, e.Price, e.RenewalPrice)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return ErrPluginNotFound
		}
		return errors.Wrapf(err, "failed to create edition %s", e.Handle)
	}

	e.ID = id
	return nil
}

func (s *EditionStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx, "UPDATE plugin_editions SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEditionNotFound
	}
	return nil
}
