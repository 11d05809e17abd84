// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/metrics"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/notifications"
)

func expiringIn(days int) func(*models.PluginLicense) {
	return func(l *models.PluginLicense) {
		expires := startOfDay(fixedNow).AddDate(0, 0, days).Add(12 * time.Hour)
		l.Expirable = true
		l.ExpiresOn = &expires
		l.RenewalPrice = ptr(decimal.RequireFromString("19"))
	}
}

func counterValue(t *testing.T, reg prometheus.Gatherer, name, sweep string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "sweep" && label.GetValue() == sweep {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunReminderSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	ok := f.insert(t, expiringIn(20))
	failing := f.insert(t, expiringIn(21))
	outside := f.insert(t, expiringIn(40))
	f.notifier.fail[failing.Key] = errors.New("smtp down")

	result, err := f.svc.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 2, Processed: 1, Failed: 1}, result)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, ok.Key, sent.Key)
	assert.Equal(t, "seo", sent.Plugin)
	assert.Equal(t, "standard", sent.Edition)
	assert.Equal(t, "19.00", sent.RenewalPrice)
	assert.Equal(t, *ok.ExpiresOn, sent.ExpiresOn)

	got, err := f.svc.GetLicenseByID(ctx, ok.ID)
	require.NoError(t, err)
	assert.True(t, got.Reminded)

	got, err = f.svc.GetLicenseByID(ctx, failing.ID)
	require.NoError(t, err)
	assert.False(t, got.Reminded)

	got, err = f.svc.GetLicenseByID(ctx, outside.ID)
	require.NoError(t, err)
	assert.False(t, got.Reminded)

	history, err := f.svc.GetHistory(ctx, ok.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, reminderDispatchedNote, history[0].Note)

	// the failed license is retried, the reminded one is not resent
	delete(f.notifier.fail, failing.Key)
	result, err = f.svc.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 1, Processed: 1}, result)
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, failing.Key, f.notifier.sent[1].Key)

	result, err = f.svc.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Len(t, f.notifier.sent, 2)
}

func TestRunReminderSweepPartialTargetFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	l := f.insert(t, expiringIn(20))

	var mu sync.Mutex
	delivered := map[string]int{}
	dispatch := func(_ context.Context, url, _, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		if url == "ntfy://ntfy.sh/licenses" {
			return errors.New("ntfy unavailable")
		}
		delivered[url]++
		return nil
	}
	f.svc.notifier = notifications.NewService(
		[]string{"discord://token@channel", "ntfy://ntfy.sh/licenses"},
		zerolog.Nop(),
		notifications.WithDispatcher(dispatch),
		notifications.WithRetry(1, 0),
	)

	result, err := f.svc.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 1, Processed: 1}, result)

	got, err := f.svc.GetLicenseByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Reminded)

	// the working target is not spammed on the next run
	result, err = f.svc.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Equal(t, 1, delivered["discord://token@channel"])

	history, err := f.svc.GetHistory(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, reminderDispatchedNote, history[0].Note)
}

func TestRunReminderSweepWithoutTargets(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	l := f.insert(t, expiringIn(20))
	f.notifier.err = notifications.ErrNoTargets

	_, err := f.svc.RunReminderSweep(ctx)
	require.ErrorIs(t, err, notifications.ErrNoTargets)

	got, err := f.svc.GetLicenseByID(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, got.Reminded)
}

func TestRunReminderSweepWithoutNotifier(t *testing.T) {
	t.Parallel()

	db := setupLicenseTestDB(t)
	svc := NewService(db, nil, nil)

	_, err := svc.RunReminderSweep(context.Background())
	require.ErrorIs(t, err, ErrNoNotifier)
}

func TestRunExpirationSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	past := f.insert(t, expiringIn(-3))
	today := f.insert(t, expiringIn(0))
	future := f.insert(t, expiringIn(1))

	manager := metrics.NewManager(nil)
	f.svc.metrics = manager.License

	result, err := f.svc.RunExpirationSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 2, Processed: 2}, result)

	for _, l := range []*models.PluginLicense{past, today} {
		got, err := f.svc.GetLicenseByID(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, got.Expired)

		history, err := f.svc.GetHistory(ctx, l.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "expired", history[0].Note)
	}

	got, err := f.svc.GetLicenseByID(ctx, future.ID)
	require.NoError(t, err)
	assert.False(t, got.Expired)

	result, err = f.svc.RunExpirationSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	assert.InDelta(t, 2, counterValue(t, manager.GetRegistry(), "registry_sweep_processed_total", metrics.SweepExpiration), 0)
	assert.InDelta(t, 0, counterValue(t, manager.GetRegistry(), "registry_sweep_failures_total", metrics.SweepExpiration), 0)
}
