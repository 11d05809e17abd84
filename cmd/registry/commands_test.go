// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/database"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/notifications"
)

func TestDBMigrateCreatesDatabase(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")

	output := mustRunCommand(t, "db", "migrate", "--config-dir", configDir)

	assert.Contains(t, output, "Database migrated (sqlite)")
	assert.FileExists(t, filepath.Join(configDir, "config.toml"))
	assert.FileExists(t, databasePath(configDir))
}

func TestSweepExpiredFlagsLapsedLicenses(t *testing.T) {
	ctx := context.Background()
	configDir := filepath.Join(t.TempDir(), "config")
	mustRunCommand(t, "db", "migrate", "--config-dir", configDir)

	lapsed := time.Now().UTC().AddDate(0, 0, -3)
	upcoming := time.Now().UTC().AddDate(0, 2, 0)

	db := openDatabase(t, databasePath(configDir))
	plugin := &models.Plugin{DeveloperID: 1, Handle: "seo", Name: "SEO", Enabled: true}
	require.NoError(t, models.NewPluginStore(db).Create(ctx, plugin))
	edition := &models.Edition{PluginID: plugin.ID, Handle: "standard", Name: "Standard", Enabled: true,
		Price: decimal.RequireFromString("59"), RenewalPrice: decimal.RequireFromString("19")}
	require.NoError(t, models.NewEditionStore(db).Create(ctx, edition))

	store := models.NewPluginLicenseStore(db)
	insert := func(key string, expiresOn time.Time) *models.PluginLicense {
		now := time.Now().UTC()
		l := &models.PluginLicense{
			PluginID: plugin.ID, EditionID: edition.ID, Key: key, Email: "buyer@example.com",
			Expirable: true, ExpiresOn: &expiresOn, DateCreated: now, DateUpdated: now,
		}
		require.NoError(t, store.Insert(ctx, l))
		return l
	}
	gone := insert("CMDKEY000000000000000001", lapsed)
	live := insert("CMDKEY000000000000000002", upcoming)
	require.NoError(t, db.Close())

	output := mustRunCommand(t, "sweep", "expired", "--config-dir", configDir)
	assert.Contains(t, output, "Sweep expired: candidates=1 processed=1 failed=0")

	output = mustRunCommand(t, "sweep", "expired", "--config-dir", configDir)
	assert.Contains(t, output, "Sweep expired: candidates=0 processed=0 failed=0")

	db = openDatabase(t, databasePath(configDir))
	t.Cleanup(func() { _ = db.Close() })
	store = models.NewPluginLicenseStore(db)

	got, err := store.Get(ctx, gone.ID)
	require.NoError(t, err)
	assert.True(t, got.Expired)

	got, err = store.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.False(t, got.Expired)
}

func TestSweepRemindersRequiresTargets(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")

	_, err := runCommand("sweep", "reminders", "--config-dir", configDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, notifications.ErrNoTargets)
}

func TestConfigLogPersistsSettings(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")

	output := mustRunCommand(t, "config", "log", "--config-dir", configDir,
		"--level", "DEBUG",
		"--max-backups", "7",
	)
	assert.Contains(t, output, "Log settings saved to")

	content, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "DEBUG"`)
	assert.Contains(t, string(content), "logMaxBackups = 7")
	// untouched flags keep their loaded values
	assert.Contains(t, string(content), "logMaxSize = 50")

	_, err = runCommand("config", "log", "--config-dir", configDir, "--level", "LOUD")
	require.Error(t, err)
}

func TestUnknownSubcommandFails(t *testing.T) {
	_, err := runCommand("bogus")
	require.Error(t, err)
}

func mustRunCommand(t *testing.T, args ...string) string {
	t.Helper()
	output, err := runCommand(args...)
	require.NoError(t, err, output)
	return output
}

func runCommand(args ...string) (string, error) {
	var buf bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func databasePath(configDir string) string {
	return filepath.Join(configDir, "registry.db")
}

func openDatabase(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.New(path)
	require.NoError(t, err)
	return db
}

func TestVersionCommand(t *testing.T) {
	output := mustRunCommand(t, "version")
	assert.Contains(t, output, "Version: dev")

	output = mustRunCommand(t, "version", "--json")
	assert.Contains(t, output, `"version":"dev"`)
}
