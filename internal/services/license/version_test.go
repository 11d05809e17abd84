// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/models"
)

func TestWithinAllowedVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		last    *string
		allowed *string
		want    *bool
	}{
		{name: "older", last: ptr("3.1.0"), allowed: ptr("3.2.0"), want: ptr(true)},
		{name: "equal", last: ptr("3.2"), allowed: ptr("3.2.0"), want: ptr(true)},
		{name: "newer", last: ptr("4.0.0"), allowed: ptr("3.9.9"), want: ptr(false)},
		{name: "prerelease of allowed", last: ptr("3.2.0-beta.1"), allowed: ptr("3.2.0"), want: ptr(true)},
		{name: "no last version", allowed: ptr("3.2.0")},
		{name: "no allowed version", last: ptr("3.2.0")},
		{name: "unparseable allowed", last: ptr("3.2.0"), allowed: ptr("latest")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, withinAllowedVersion(tt.last, tt.allowed))
		})
	}
}

func TestFullViewReportsAllowedVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	owner := models.User{ID: 7, Email: "owner@example.com"}
	l := f.insert(t, func(l *models.PluginLicense) {
		l.OwnerID = ptr(owner.ID)
		l.LastVersion = ptr("4.1.0")
		l.LastAllowedVersion = ptr("4.0.0")
	})

	stored, err := f.svc.GetLicenseByID(ctx, l.ID)
	require.NoError(t, err)

	view, err := f.svc.TransformForOwner(ctx, stored, owner)
	require.NoError(t, err)
	full, ok := view.(*FullView)
	require.True(t, ok)
	require.NotNil(t, full.WithinAllowedVersion)
	assert.False(t, *full.WithinAllowedVersion)
}
