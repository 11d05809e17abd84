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

// PluginLicense is a license key for one edition of one plugin.
type PluginLicense struct {
	DateCreated        time.Time        `json:"dateCreated"`
	DateUpdated        time.Time        `json:"dateUpdated"`
	ExpiresOn          *time.Time       `json:"expiresOn"`
	LastActivityOn     *time.Time       `json:"lastActivityOn"`
	LastRenewedOn      *time.Time       `json:"lastRenewedOn"`
	RenewalPrice       *decimal.Decimal `json:"renewalPrice"`
	OwnerID            *int64           `json:"ownerId"`
	CmsLicenseID       *int64           `json:"cmsLicenseId"`
	LastVersion        *string          `json:"lastVersion"`
	LastAllowedVersion *string          `json:"lastAllowedVersion"`
	Key                string           `json:"key" validate:"len=24,alphanum"`
	Email              string           `json:"email" validate:"required,email,max=255"`
	Notes              string           `json:"notes"`
	PrivateNotes       string           `json:"privateNotes"`

	// PluginHandle and Edition identify the plugin and edition by handle.
	// Save resolves them when PluginID or EditionID are unset; lookups fill
	// them from the catalog.
	PluginHandle string `json:"plugin"`
	Edition      string `json:"edition"`

	// Errors holds the validation failures of the last Save.
	Errors ValidationErrors `json:"-"`

	ID        int64 `json:"id"`
	PluginID  int64 `json:"pluginId"`
	EditionID int64 `json:"editionId"`
	Expirable bool  `json:"expirable"`
	Expired   bool  `json:"expired"`
	AutoRenew bool  `json:"autoRenew"`
	Reminded  bool  `json:"reminded"`
}

// IsOwnedBy reports whether userID owns the license.
func (l *PluginLicense) IsOwnedBy(userID int64) bool {
	return l.OwnerID != nil && *l.OwnerID == userID
}

// ShortKey returns the key prefix shown to non-owners.
func (l *PluginLicense) ShortKey() string {
	return ShortKey(l.Key)
}

// licenseRow is the storage shape of a plugin license.
type licenseRow struct {
	ExpiresOn          sql.NullTime
	LastActivityOn     sql.NullTime
	LastRenewedOn      sql.NullTime
	DateCreated        time.Time
	DateUpdated        time.Time
	RenewalPrice       decimal.NullDecimal
	OwnerID            sql.NullInt64
	CmsLicenseID       sql.NullInt64
	LastVersion        sql.NullString
	LastAllowedVersion sql.NullString
	Key                string
	Email              string
	Notes              string
	PrivateNotes       string
	PluginHandle       string
	EditionHandle      string
	ID                 int64
	PluginID           int64
	EditionID          int64
	Expirable          bool
	Expired            bool
	AutoRenew          bool
	Reminded           bool
}

const licenseColumns = `
	l.id, l.plugin_id, l.edition_id, l.owner_id, l.cms_license_id, l.license_key, l.email,
	l.expirable, l.expires_on, l.expired, l.auto_renew, l.reminded, l.renewal_price,
	l.notes, l.private_notes, l.last_version, l.last_allowed_version,
	l.last_activity_on, l.last_renewed_on, l.date_created, l.date_updated,
	p.handle, e.handle`

const licenseFrom = `
	FROM plugin_licenses l
	INNER JOIN plugins p ON p.id = l.plugin_id
	INNER JOIN plugin_editions e ON e.id = l.edition_id`

func (r *licenseRow) scanTargets() []any {
	return []any{
		&r.ID, &r.PluginID, &r.EditionID, &r.OwnerID, &r.CmsLicenseID, &r.Key, &r.Email,
		&r.Expirable, &r.ExpiresOn, &r.Expired, &r.AutoRenew, &r.Reminded, &r.RenewalPrice,
		&r.Notes, &r.PrivateNotes, &r.LastVersion, &r.LastAllowedVersion,
		&r.LastActivityOn, &r.LastRenewedOn, &r.DateCreated, &r.DateUpdated,
		&r.PluginHandle, &r.EditionHandle,
	}
}

func (r *licenseRow) toLicense() *PluginLicense {
	l := &PluginLicense{
		ID:                 r.ID,
		PluginID:           r.PluginID,
		EditionID:          r.EditionID,
		OwnerID:            int64Ptr(r.OwnerID),
		CmsLicenseID:       int64Ptr(r.CmsLicenseID),
		Key:                r.Key,
		Email:              r.Email,
		Expirable:          r.Expirable,
		ExpiresOn:          timePtr(r.ExpiresOn),
		Expired:            r.Expired,
		AutoRenew:          r.AutoRenew,
		Reminded:           r.Reminded,
		Notes:              r.Notes,
		PrivateNotes:       r.PrivateNotes,
		LastVersion:        stringPtr(r.LastVersion),
		LastAllowedVersion: stringPtr(r.LastAllowedVersion),
		LastActivityOn:     timePtr(r.LastActivityOn),
		LastRenewedOn:      timePtr(r.LastRenewedOn),
		DateCreated:        r.DateCreated.UTC(),
		DateUpdated:        r.DateUpdated.UTC(),
		PluginHandle:       r.PluginHandle,
		Edition:            r.EditionHandle,
	}
	if r.RenewalPrice.Valid {
		price := r.RenewalPrice.Decimal
		l.RenewalPrice = &price
	}
	return l
}

// writeArgs returns the mutable columns in the order Insert and Update list them.
func writeArgs(l *PluginLicense) []any {
	var price decimal.NullDecimal
	if l.RenewalPrice != nil {
		price = decimal.NewNullDecimal(*l.RenewalPrice)
	}

	return []any{
		l.PluginID, l.EditionID, nullableInt64(l.OwnerID), nullableInt64(l.CmsLicenseID), l.Key, l.Email,
		l.Expirable, nullableTime(l.ExpiresOn), l.Expired, l.AutoRenew, l.Reminded, price,
		l.Notes, l.PrivateNotes, nullableString(l.LastVersion), nullableString(l.LastAllowedVersion),
		nullableTime(l.LastActivityOn), nullableTime(l.LastRenewedOn), l.DateUpdated.UTC(),
	}
}

type PluginLicenseStore struct {
	db dbinterface.Querier
}

func NewPluginLicenseStore(db dbinterface.Querier) *PluginLicenseStore {
	return &PluginLicenseStore{db: db}
}

func (s *PluginLicenseStore) queryOne(ctx context.Context, q *licenseQuery) (*PluginLicense, error) {
	var row licenseRow
	err := s.db.QueryRowContext(ctx, "SELECT"+licenseColumns+licenseFrom+q.whereClause(), q.args...).Scan(row.scanTargets()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return row.toLicense(), nil
}

func (s *PluginLicenseStore) queryMany(ctx context.Context, query string, args ...any) ([]*PluginLicense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	licenses := make([]*PluginLicense, 0)
	for rows.Next() {
		var row licenseRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, err
		}
		licenses = append(licenses, row.toLicense())
	}

	return licenses, rows.Err()
}

// list runs a filtered, sorted and paged listing and counts the filtered total.
func (s *PluginLicenseStore) list(ctx context.Context, q *licenseQuery, opts ListOptions) ([]*PluginLicense, int, error) {
	q.search(opts.Search)

	order, err := orderClause(opts.OrderBy, opts.Ascending)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+licenseFrom+q.whereClause(), q.args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count licenses")
	}

	args := append(append([]any{}, q.args...), opts.limit(), opts.offset())
	licenses, err := s.queryMany(ctx, "SELECT"+licenseColumns+licenseFrom+q.whereClause()+order+" LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list licenses")
	}

	return licenses, total, nil
}

// Get returns a license by id.
func (s *PluginLicenseStore) Get(ctx context.Context, id int64) (*PluginLicense, error) {
	var q licenseQuery
	q.and("l.id = ?", id)
	return s.queryOne(ctx, &q)
}

// KeyLookup narrows GetByKey.
type KeyLookup struct {
	// PluginID restricts the match to one plugin when non-zero.
	PluginID int64
	// IncludeDisabled also matches licenses of disabled plugins or editions.
	IncludeDisabled bool
}

// GetByKey returns the license with the given canonical key.
func (s *PluginLicenseStore) GetByKey(ctx context.Context, key string, lookup KeyLookup) (*PluginLicense, error) {
	var q licenseQuery
	q.and("l.license_key = ?", key)
	if lookup.PluginID != 0 {
		q.and("l.plugin_id = ?", lookup.PluginID)
	}
	if !lookup.IncludeDisabled {
		q.and("p.enabled = ?", true)
		q.and("e.enabled = ?", true)
	}
	return s.queryOne(ctx, &q)
}

// ListByOwner returns a page of the owner's licenses and the filtered total.
func (s *PluginLicenseStore) ListByOwner(ctx context.Context, ownerID int64, opts ListOptions) ([]*PluginLicense, int, error) {
	var q licenseQuery
	q.and("l.owner_id = ?", ownerID)
	return s.list(ctx, &q, opts)
}

// ListByDeveloper returns a page of licenses for plugins of one developer.
func (s *PluginLicenseStore) ListByDeveloper(ctx context.Context, developerID int64, opts DeveloperListOptions) ([]*PluginLicense, int, error) {
	var q licenseQuery
	q.and("p.developer_id = ?", developerID)
	if opts.Condition != "" {
		q.and("("+opts.Condition+")", opts.ConditionArgs...)
	}
	return s.list(ctx, &q, opts.ListOptions)
}

// ListByOrder returns the licenses issued by an order.
func (s *PluginLicenseStore) ListByOrder(ctx context.Context, orderID int64) ([]*PluginLicense, error) {
	return s.queryMany(ctx, "SELECT"+licenseColumns+licenseFrom+
		" INNER JOIN plugin_license_orders o ON o.license_id = l.id WHERE o.order_id = ? ORDER BY l.id ASC", orderID)
}

// ListByCmsLicense returns the licenses attached to a CMS license.
func (s *PluginLicenseStore) ListByCmsLicense(ctx context.Context, cmsLicenseID int64) ([]*PluginLicense, error) {
	return s.queryMany(ctx, "SELECT"+licenseColumns+licenseFrom+" WHERE l.cms_license_id = ? ORDER BY l.id ASC", cmsLicenseID)
}

// ListExpiringBefore returns the owner's licenses that expire at or before cutoff.
func (s *PluginLicenseStore) ListExpiringBefore(ctx context.Context, ownerID int64, cutoff time.Time) ([]*PluginLicense, error) {
	return s.queryMany(ctx, "SELECT"+licenseColumns+licenseFrom+
		" WHERE l.owner_id = ? AND l.expires_on IS NOT NULL AND l.expires_on <= ? ORDER BY l.expires_on ASC, l.id ASC",
		ownerID, cutoff.UTC())
}

// ListRemindable returns expirable, not yet reminded licenses with
// from <= expiresOn < until.
func (s *PluginLicenseStore) ListRemindable(ctx context.Context, from, until time.Time) ([]*PluginLicense, error) {
	return s.queryMany(ctx, "SELECT"+licenseColumns+licenseFrom+
		" WHERE l.expirable = ? AND l.reminded = ? AND l.expires_on IS NOT NULL AND l.expires_on >= ? AND l.expires_on < ?"+
		" ORDER BY l.expires_on ASC, l.id ASC",
		true, false, from.UTC(), until.UTC())
}

// ListExpiredBefore returns expirable licenses not yet flagged expired whose
// expiresOn is strictly before cutoff.
func (s *PluginLicenseStore) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*PluginLicense, error) {
	return s.queryMany(ctx, "SELECT"+licenseColumns+licenseFrom+
		" WHERE l.expirable = ? AND l.expired = ? AND l.expires_on IS NOT NULL AND l.expires_on < ?"+
		" ORDER BY l.expires_on ASC, l.id ASC",
		true, false, cutoff.UTC())
}

// CountExpiringBefore counts the owner's licenses that are not expired, not on
// auto renew and expire at or before cutoff.
func (s *PluginLicenseStore) CountExpiringBefore(ctx context.Context, ownerID int64, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plugin_licenses
		WHERE owner_id = ? AND expired = ? AND auto_renew = ? AND expires_on IS NOT NULL AND expires_on <= ?`,
		ownerID, false, false, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count expiring licenses")
	}
	return count, nil
}

// KeyExists reports whether another license than excludeID already uses key.
func (s *PluginLicenseStore) KeyExists(ctx context.Context, key string, excludeID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM plugin_licenses WHERE license_key = ? AND id != ? LIMIT 1", key, excludeID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Insert stores a new license and assigns its id.
func (s *PluginLicenseStore) Insert(ctx context.Context, l *PluginLicense) error {
	id, err := dbinterface.InsertReturningID(ctx, s.db, `
		INSERT INTO plugin_licenses (
			plugin_id, edition_id, owner_id, cms_license_id, license_key, email,
			expirable, expires_on, expired, auto_renew, reminded, renewal_price,
			notes, private_notes, last_version, last_allowed_version,
			last_activity_on, last_renewed_on, date_updated, date_created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(writeArgs(l), l.DateCreated.UTC())...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.Wrap(ErrDuplicateLicenseKey, err.Error())
		}
		return err
	}

	l.ID = id
	return nil
}

// Update writes every mutable column of an existing license.
func (s *PluginLicenseStore) Update(ctx context.Context, l *PluginLicense) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE plugin_licenses SET
			plugin_id = ?, edition_id = ?, owner_id = ?, cms_license_id = ?, license_key = ?, email = ?,
			expirable = ?, expires_on = ?, expired = ?, auto_renew = ?, reminded = ?, renewal_price = ?,
			notes = ?, private_notes = ?, last_version = ?, last_allowed_version = ?,
			last_activity_on = ?, last_renewed_on = ?, date_updated = ?
		WHERE id = ?`,
		append(writeArgs(l), l.ID)...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// ClaimIfUnowned assigns the license to owner unless someone already owns it.
// It reports whether this call made the assignment.
func (s *PluginLicenseStore) ClaimIfUnowned(ctx context.Context, id int64, owner User, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE plugin_licenses SET owner_id = ?, email = ?, date_updated = ? WHERE id = ? AND owner_id IS NULL",
		owner.ID, owner.Email, now.UTC(), id)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim license")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ClaimByEmail assigns every unowned license whose email matches
// case-insensitively to owner and returns the claimed ids.
func (s *PluginLicenseStore) ClaimByEmail(ctx context.Context, ownerID int64, email string, now time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM plugin_licenses WHERE owner_id IS NULL AND LOWER(email) = LOWER(?) ORDER BY id ASC", email)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find unclaimed licenses")
	}

	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	claimed := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		result, err := s.db.ExecContext(ctx,
			"UPDATE plugin_licenses SET owner_id = ?, date_updated = ? WHERE id = ? AND owner_id IS NULL",
			ownerID, now.UTC(), id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to claim license %d", id)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			claimed = append(claimed, id)
		}
	}

	return claimed, nil
}

// MarkReminded flips the reminded flag and reports whether it changed.
func (s *PluginLicenseStore) MarkReminded(ctx context.Context, id int64, now time.Time) (bool, error) {
	return s.flip(ctx, "reminded", id, now)
}

// MarkExpired flips the expired flag and reports whether it changed.
func (s *PluginLicenseStore) MarkExpired(ctx context.Context, id int64, now time.Time) (bool, error) {
	return s.flip(ctx, "expired", id, now)
}

// flip sets a one-way boolean column. column is never caller input.
func (s *PluginLicenseStore) flip(ctx context.Context, column string, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE plugin_licenses SET "+column+" = ?, date_updated = ? WHERE id = ? AND "+column+" = ?",
		true, now.UTC(), id, false)
	if err != nil {
		return false, errors.Wrapf(err, "failed to mark license %d %s", id, column)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// RecordActivity stores the latest version a license was seen running.
func (s *PluginLicenseStore) RecordActivity(ctx context.Context, key, version string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE plugin_licenses SET last_activity_on = ?, last_version = ?, date_updated = ? WHERE license_key = ?",
		at.UTC(), version, at.UTC(), key)
	if err != nil {
		return errors.Wrap(err, "failed to record license activity")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// LinkOrder records that orderID issued the license. Linking twice is a no-op.
func (s *PluginLicenseStore) LinkOrder(ctx context.Context, licenseID, orderID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO plugin_license_orders (license_id, order_id, created_at) VALUES (?, ?, ?) ON CONFLICT (license_id, order_id) DO NOTHING",
		licenseID, orderID, at.UTC())
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return ErrLicenseNotFound
		}
		return errors.Wrap(err, "failed to link order")
	}
	return nil
}

// Delete removes a license by id.
func (s *PluginLicenseStore) Delete(ctx context.Context, id int64) error {
	return s.delete(ctx, "id = ?", id)
}

// DeleteByKey removes a license by canonical key.
func (s *PluginLicenseStore) DeleteByKey(ctx context.Context, key string) error {
	return s.delete(ctx, "license_key = ?", key)
}

func (s *PluginLicenseStore) delete(ctx context.Context, where string, arg any) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM plugin_licenses WHERE "+where, arg)
	if err != nil {
		return errors.Wrap(err, "failed to delete license")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// LicenseStats is a point-in-time count of licenses by state.
type LicenseStats struct {
	Total     int
	Unclaimed int
	Expirable int
	Expired   int
	AutoRenew int
}

// Stats counts licenses by state in a single pass.
func (s *PluginLicenseStore) Stats(ctx context.Context) (LicenseStats, error) {
	var stats LicenseStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN owner_id IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expirable = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expired = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN auto_renew = ? THEN 1 ELSE 0 END), 0)
		FROM plugin_licenses`,
		true, true, true).
		Scan(&stats.Total, &stats.Unclaimed, &stats.Expirable, &stats.Expired, &stats.AutoRenew)
	if err != nil {
		return LicenseStats{}, errors.Wrap(err, "failed to count licenses by state")
	}
	return stats, nil
}
