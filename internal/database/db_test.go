// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginstore/registry/internal/dbinterface"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func TestNewAppliesMigrations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	tables := []string{"plugins", "plugin_editions", "cms_licenses", "plugin_licenses", "plugin_license_history", "plugin_license_orders"}
	for _, table := range tables {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	var applied int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestNewIsIdempotentOnReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestForeignKeysEnforced(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "INSERT INTO plugin_editions (plugin_id, handle, name) VALUES (?, ?, ?)", 999, "standard", "Standard")
	require.Error(t, err)
}

func TestInsertReturningID(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	first, err := dbinterface.InsertReturningID(ctx, db, "INSERT INTO plugins (developer_id, handle, name) VALUES (?, ?, ?)", 1, "seo", "SEO")
	require.NoError(t, err)
	second, err := dbinterface.InsertReturningID(ctx, db, "INSERT INTO plugins (developer_id, handle, name) VALUES (?, ?, ?)", 1, "commerce", "Commerce")
	require.NoError(t, err)

	assert.Positive(t, first)
	assert.Greater(t, second, first)
}

func TestTxRollbackReleasesWriter(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO plugins (developer_id, handle, name) VALUES (?, ?, ?)", 1, "seo", "SEO")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	// second release must not unlock twice
	assert.ErrorIs(t, tx.Rollback(), sql.ErrTxDone)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plugins").Scan(&count))
	assert.Zero(t, count)

	// writer lock is free again
	_, err = db.ExecContext(ctx, "INSERT INTO plugins (developer_id, handle, name) VALUES (?, ?, ?)", 1, "seo", "SEO")
	require.NoError(t, err)
}

func TestWriteTransactionsAreSerialized(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "INSERT INTO plugins (developer_id, handle, name) VALUES (?, ?, ?)", 1, "counter", "0")
	require.NoError(t, err)

	// read-modify-write inside a transaction must never lose an update
	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := dbinterface.WithTx(ctx, db, func(tx dbinterface.TxQuerier) error {
				var developer int
				if err := tx.QueryRowContext(ctx, "SELECT developer_id FROM plugins WHERE handle = ?", "counter").Scan(&developer); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				_, err := tx.ExecContext(ctx, "UPDATE plugins SET developer_id = ? WHERE handle = ?", developer+1, "counter")
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var developer int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT developer_id FROM plugins WHERE handle = ?", "counter").Scan(&developer))
	assert.Equal(t, 1+workers, developer)
}

func TestIsWriteQuery(t *testing.T) {
	t.Parallel()

	assert.True(t, isWriteQuery("  INSERT INTO plugins"))
	assert.True(t, isWriteQuery("\n\tupdate plugin_licenses SET"))
	assert.True(t, isWriteQuery("DELETE FROM plugin_licenses"))
	assert.False(t, isWriteQuery("SELECT 1"))
	assert.False(t, isWriteQuery(""))
}
