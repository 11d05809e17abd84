// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/database"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/notifications"
	"github.com/pluginstore/registry/internal/testdb"
)

var fixedNow = time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

type fixture struct {
	db       *database.DB
	svc      *Service
	notifier *fakeNotifier
	plugin   *models.Plugin
	standard *models.Edition
	pro      *models.Edition
}

func setupLicenseTestDB(t *testing.T) *database.DB {
	t.Helper()
	return testdb.Open(t, "license-service")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := setupLicenseTestDB(t)

	plugin := &models.Plugin{DeveloperID: 42, Handle: "seo", Name: "SEO", Enabled: true}
	require.NoError(t, models.NewPluginStore(db).Create(ctx, plugin))

	editions := models.NewEditionStore(db)
	standard := &models.Edition{PluginID: plugin.ID, Handle: "standard", Name: "Standard", Enabled: true,
		Price: decimal.RequireFromString("49"), RenewalPrice: decimal.RequireFromString("19")}
	require.NoError(t, editions.Create(ctx, standard))
	pro := &models.Edition{PluginID: plugin.ID, Handle: "pro", Name: "Pro", Enabled: true,
		Price: decimal.RequireFromString("99"), RenewalPrice: decimal.RequireFromString("39")}
	require.NoError(t, editions.Create(ctx, pro))

	notifier := &fakeNotifier{fail: make(map[string]error)}
	svc := NewService(db, notifier, nil)
	svc.now = func() time.Time { return fixedNow }

	return &fixture{db: db, svc: svc, notifier: notifier, plugin: plugin, standard: standard, pro: pro}
}

var keySeq atomic.Int64

func nextKey() string {
	return fmt.Sprintf("SVCKEY%018d", keySeq.Add(1))
}

// insert stores a license directly, bypassing Save.
func (f *fixture) insert(t *testing.T, mutate func(*models.PluginLicense)) *models.PluginLicense {
	t.Helper()

	l := &models.PluginLicense{
		PluginID:    f.plugin.ID,
		EditionID:   f.standard.ID,
		Key:         nextKey(),
		Email:       "buyer@example.com",
		DateCreated: fixedNow,
		DateUpdated: fixedNow,
	}
	if mutate != nil {
		mutate(l)
	}
	require.NoError(t, models.NewPluginLicenseStore(f.db).Insert(context.Background(), l))
	return l
}

func ptr[T any](v T) *T {
	return &v
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notifications.Reminder
	fail map[string]error
	err  error
}

func (n *fakeNotifier) SendRenewalReminder(_ context.Context, r notifications.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if err := n.fail[r.Key]; err != nil {
		return err
	}
	n.sent = append(n.sent, r)
	return nil
}
