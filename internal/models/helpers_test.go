// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/database"
	"github.com/pluginstore/registry/internal/testdb"
)

type catalog struct {
	plugin   *Plugin
	standard *Edition
	pro      *Edition
}

var testNow = time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

func seedCatalog(t *testing.T, db *database.DB, developerID int64, handle string) catalog {
	t.Helper()
	ctx := context.Background()

	plugin := &Plugin{DeveloperID: developerID, Handle: handle, Name: handle + " plugin", Enabled: true}
	require.NoError(t, NewPluginStore(db).Create(ctx, plugin))

	editions := NewEditionStore(db)
	standard := &Edition{PluginID: plugin.ID, Handle: "standard", Name: "Standard", Enabled: true,
		Price: decimal.RequireFromString("49"), RenewalPrice: decimal.RequireFromString("19.99")}
	require.NoError(t, editions.Create(ctx, standard))
	pro := &Edition{PluginID: plugin.ID, Handle: "pro", Name: "Pro", Enabled: true,
		Price: decimal.RequireFromString("99"), RenewalPrice: decimal.RequireFromString("39")}
	require.NoError(t, editions.Create(ctx, pro))

	return catalog{plugin: plugin, standard: standard, pro: pro}
}

var keySeq atomic.Int64

// testKey returns a distinct canonical key per call.
func testKey() string {
	return fmt.Sprintf("TESTKEY%017d", keySeq.Add(1))
}

func newLicense(c catalog, mutate func(*PluginLicense)) *PluginLicense {
	l := &PluginLicense{
		PluginID:    c.plugin.ID,
		EditionID:   c.standard.ID,
		Key:         testKey(),
		Email:       "buyer@example.com",
		DateCreated: testNow,
		DateUpdated: testNow,
	}
	if mutate != nil {
		mutate(l)
	}
	return l
}

func insertLicense(t *testing.T, store *PluginLicenseStore, l *PluginLicense) *PluginLicense {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), l))
	return l
}

func ptr[T any](v T) *T {
	return &v
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	return testdb.Open(t, "models")
}
