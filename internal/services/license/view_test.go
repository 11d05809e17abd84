// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/models"
)

func TestTransformForOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	owner := models.User{ID: 7, Email: "owner@example.com"}
	expires := fixedNow.AddDate(0, 2, 0)
	l := f.insert(t, func(l *models.PluginLicense) {
		l.OwnerID = ptr(owner.ID)
		l.Email = owner.Email
		l.Notes = "production site"
		l.PrivateNotes = "refund requested once"
		l.Expirable = true
		l.ExpiresOn = &expires
	})
	_, err := f.svc.AddHistory(ctx, l.ID, "issued", fixedNow.Add(-time.Hour))
	require.NoError(t, err)

	stored, err := f.svc.GetLicenseByID(ctx, l.ID)
	require.NoError(t, err)

	t.Run("owner sees full view", func(t *testing.T) {
		view, err := f.svc.TransformForOwner(ctx, stored, owner)
		require.NoError(t, err)
		require.True(t, view.IsFull())

		full, ok := view.(*FullView)
		require.True(t, ok)
		assert.Equal(t, l.Key, full.Key)
		assert.Equal(t, "owner@example.com", full.Email)
		assert.Equal(t, "production site", full.Notes)
		assert.Equal(t, "SEO", full.Plugin.Name)
		assert.True(t, full.Plugin.HasMultipleEditions)
		assert.Equal(t, "standard", full.Enrichment.Edition.Handle)
		assert.Equal(t, "standard", full.Edition)
		require.Len(t, full.History, 1)
		assert.Equal(t, "issued", full.History[0].Note)
		assert.Nil(t, full.CmsLicense)

		raw, err := json.Marshal(view)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "refund requested once")
		assert.NotContains(t, string(raw), "privateNotes")
		assert.Contains(t, string(raw), `"pluginInfo"`)
		assert.NotContains(t, string(raw), `"cmsLicense"`)
	})

	t.Run("stranger sees redacted view", func(t *testing.T) {
		view, err := f.svc.TransformForOwner(ctx, stored, models.User{ID: 8, Email: "stranger@example.com"})
		require.NoError(t, err)
		require.False(t, view.IsFull())

		redacted, ok := view.(*RedactedView)
		require.True(t, ok)
		assert.Equal(t, l.Key[:models.ShortKeyLength], redacted.ShortKey)
		require.Len(t, redacted.History, 1)

		raw, err := json.Marshal(view)
		require.NoError(t, err)

		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.ElementsMatch(t, []string{"pluginInfo", "editionDetails", "history", "shortKey"}, keys(fields))
		assert.NotContains(t, string(raw), l.Key)
		assert.NotContains(t, string(raw), "owner@example.com")
	})

	t.Run("unowned license is redacted for everyone", func(t *testing.T) {
		unowned := f.insert(t, nil)
		view, err := f.svc.TransformForOwner(ctx, unowned, owner)
		require.NoError(t, err)
		assert.False(t, view.IsFull())
	})
}

func TestTransformForOwnerCmsLicense(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	cmsStore := models.NewCmsLicenseStore(f.db)

	owner := models.User{ID: 7, Email: "owner@example.com"}
	mine := &models.CmsLicense{OwnerID: ptr(owner.ID), Key: "CMSKEYOWNEDBYME0000000000", EditionHandle: "pro", Email: owner.Email}
	require.NoError(t, cmsStore.Create(ctx, mine))
	theirs := &models.CmsLicense{OwnerID: ptr(int64(99)), Key: "CMSKEYOWNEDBYTHEM0000000", EditionHandle: "solo", Email: "agency@example.com"}
	require.NoError(t, cmsStore.Create(ctx, theirs))

	withMine := f.insert(t, func(l *models.PluginLicense) { l.OwnerID = ptr(owner.ID); l.CmsLicenseID = &mine.ID })
	withTheirs := f.insert(t, func(l *models.PluginLicense) { l.OwnerID = ptr(owner.ID); l.CmsLicenseID = &theirs.ID })

	view, err := f.svc.TransformForOwner(ctx, withMine, owner)
	require.NoError(t, err)
	full := view.(*FullView)
	require.IsType(t, &FullCmsLicense{}, full.CmsLicense)
	cms := full.CmsLicense.(*FullCmsLicense)
	assert.Equal(t, mine.Key, cms.Key)
	assert.Equal(t, "pro", cms.Edition)

	view, err = f.svc.TransformForOwner(ctx, withTheirs, owner)
	require.NoError(t, err)
	full = view.(*FullView)
	require.IsType(t, &ShortCmsLicense{}, full.CmsLicense)
	short := full.CmsLicense.(*ShortCmsLicense)
	assert.Equal(t, "CMSKEYOWNE", short.ShortKey)
	assert.Equal(t, "solo", short.Edition)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), theirs.Key)
	assert.NotContains(t, string(raw), "agency@example.com")
}

func TestExpiryDateOptions(t *testing.T) {
	t.Parallel()

	today := startOfDay(fixedNow)
	future := time.Date(2026, time.August, 1, 9, 0, 0, 0, time.UTC)
	past := time.Date(2025, time.December, 24, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		license *models.PluginLicense
		want    []time.Time
	}{
		{
			name:    "not expirable",
			license: &models.PluginLicense{},
		},
		{
			name:    "expirable without date",
			license: &models.PluginLicense{Expirable: true},
		},
		{
			name:    "counted from future expiry",
			license: &models.PluginLicense{Expirable: true, ExpiresOn: &future},
			want: []time.Time{
				future.AddDate(1, 0, 0), future.AddDate(2, 0, 0), future.AddDate(3, 0, 0),
				future.AddDate(4, 0, 0), future.AddDate(5, 0, 0),
			},
		},
		{
			name:    "counted from today once lapsed",
			license: &models.PluginLicense{Expirable: true, ExpiresOn: &past},
			want: []time.Time{
				today.AddDate(1, 0, 0), today.AddDate(2, 0, 0), today.AddDate(3, 0, 0),
				today.AddDate(4, 0, 0), today.AddDate(5, 0, 0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := expiryDateOptions(tt.license, fixedNow)
			require.NotNil(t, options)
			require.Len(t, options, len(tt.want))
			for i, option := range options {
				assert.Equal(t, tt.want[i], option.Date)
				assert.Equal(t, string(rune('1'+i))+"y", option.Key)
			}
		})
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
