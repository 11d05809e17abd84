// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortField(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"key", "plugin", "email", "expiresOn", "dateCreated", "lastActivityOn", "notes"} {
		field, err := ParseSortField(value)
		require.NoError(t, err, value)
		assert.Equal(t, SortField(value), field)
	}

	field, err := ParseSortField("  ")
	require.NoError(t, err)
	assert.Empty(t, field)

	_, err = ParseSortField("private_notes; DROP TABLE plugin_licenses")
	require.ErrorIs(t, err, ErrInvalidSortField)
}

func TestListOptionsPaging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       ListOptions
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", opts: ListOptions{}, wantLimit: DefaultPageSize, wantOffset: 0},
		{name: "second page of ten", opts: ListOptions{Limit: 10, Page: 2}, wantLimit: 10, wantOffset: 10},
		{name: "default limit third page", opts: ListOptions{Page: 3}, wantLimit: DefaultPageSize, wantOffset: 60},
		{name: "negative page", opts: ListOptions{Limit: 5, Page: -4}, wantLimit: 5, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantLimit, tt.opts.limit())
			assert.Equal(t, tt.wantOffset, tt.opts.offset())
		})
	}
}

func TestOrderClause(t *testing.T) {
	t.Parallel()

	clause, err := orderClause("", false)
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY l.id ASC", clause)

	clause, err = orderClause(SortByKey, true)
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY l.license_key ASC, l.id ASC", clause)

	clause, err = orderClause(SortByExpiresOn, false)
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY (l.expires_on IS NULL) ASC, l.expires_on DESC, l.id ASC", clause)

	_, err = orderClause("bogus", true)
	require.ErrorIs(t, err, ErrInvalidSortField)
}

func TestLicenseQuerySearch(t *testing.T) {
	t.Parallel()

	var q licenseQuery
	q.and("l.owner_id = ?", int64(7))
	q.search("  50%_Off ")

	assert.Contains(t, q.whereClause(), " WHERE l.owner_id = ? AND (LOWER(l.license_key) LIKE ?")
	require.Len(t, q.args, 5)
	assert.Equal(t, int64(7), q.args[0])
	assert.Equal(t, `%50\%\_off%`, q.args[1])

	var empty licenseQuery
	empty.search("   ")
	assert.Empty(t, empty.whereClause())
	assert.Empty(t, empty.args)
}
