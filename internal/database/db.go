// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package database provides the relational layer for the license registry.
//
// ENGINES:
//
// SQLite (modernc, pure Go) is the default engine. Postgres is supported
// through the pgx stdlib driver. Stores write `?` placeholders; queries are
// rebound to `$n` when running against Postgres.
//
// WRITE SERIALIZATION:
//
// SQLite allows a single writer. All write statements and write
// transactions take writeMu so in-process writers never race for the
// database lock:
//   - ExecContext with INSERT/UPDATE/DELETE holds writeMu for the statement
//   - BeginTx (not read-only) holds writeMu until Commit or Rollback
//   - Readers use the pool directly; WAL mode keeps them concurrent with writers
//
// Postgres skips writeMu and relies on its own row locking.
//
// PREPARED STATEMENTS:
//
// Statements are cached in a ttlcache keyed by the rebound query and closed
// on eviction. Transactions adapt cached statements with StmtContext.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"

	"github.com/pluginstore/registry/internal/dbinterface"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	conn    *sql.DB
	dialect Dialect
	stmts   *ttlcache.Cache[string, *sql.Stmt]

	// serializeWrites is true for SQLite.
	serializeWrites bool
	writeMu         sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Tx wraps sql.Tx to provide prepared statement caching and placeholder
// rebinding for transaction queries.
type Tx struct {
	tx          *sql.Tx
	db          *DB
	releaseOnce sync.Once
	release     func()
}

// ExecContext executes a query within the transaction using cached prepared statements
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = t.db.bindQuery(query)
	stmt, err := t.db.getStmt(ctx, query)
	if err != nil {
		return t.tx.ExecContext(ctx, query, args...)
	}

	txStmt := t.tx.StmtContext(ctx, stmt)
	defer txStmt.Close()
	return txStmt.ExecContext(ctx, args...)
}

// QueryContext executes a query within the transaction using cached prepared statements
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = t.db.bindQuery(query)
	stmt, err := t.db.getStmt(ctx, query)
	if err != nil {
		return t.tx.QueryContext(ctx, query, args...)
	}

	// rows keep the statement alive until closed, so txStmt is not closed here
	return t.tx.StmtContext(ctx, stmt).QueryContext(ctx, args...)
}

// QueryRowContext executes a query within the transaction using cached prepared statements
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	query = t.db.bindQuery(query)
	stmt, err := t.db.getStmt(ctx, query)
	if err != nil {
		return t.tx.QueryRowContext(ctx, query, args...)
	}

	return t.tx.StmtContext(ctx, stmt).QueryRowContext(ctx, args...)
}

// Commit commits the transaction and releases the writer lock.
func (t *Tx) Commit() error {
	defer t.done()
	return t.tx.Commit()
}

// Rollback rolls back the transaction and releases the writer lock.
// Calling it after Commit is a no-op returning sql.ErrTxDone.
func (t *Tx) Rollback() error {
	defer t.done()
	return t.tx.Rollback()
}

func (t *Tx) done() {
	t.releaseOnce.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

const (
	defaultBusyTimeout       = 5 * time.Second
	defaultBusyTimeoutMillis = int(defaultBusyTimeout / time.Millisecond)
	connectionSetupTimeout   = 5 * time.Second
	stmtCacheTTL             = 5 * time.Minute
)

var driverInit sync.Once

type pragmaExecFn func(ctx context.Context, stmt string) error

func registerConnectionHook() {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			return applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
				_, err := conn.ExecContext(ctx, stmt, nil)
				if err != nil {
					return fmt.Errorf("connection hook exec %q: %w", stmt, err)
				}
				return nil
			})
		})
	})
}

func applyConnectionPragmas(ctx context.Context, exec pragmaExecFn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeoutMillis),
	}

	for _, pragma := range pragmas {
		if err := exec(ctx, pragma); err != nil {
			return fmt.Errorf("apply connection pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func newStmtCache() *ttlcache.Cache[string, *sql.Stmt] {
	opts := ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(stmtCacheTTL).
		SetDeallocationFunc(func(_ string, s *sql.Stmt, _ ttlcache.DeallocationReason) {
			if s != nil {
				_ = s.Close()
			}
		})
	return ttlcache.New(opts)
}

// New opens (creating if needed) the SQLite database at databasePath and
// applies pending migrations.
func New(databasePath string) (*DB, error) {
	log.Info().Msgf("Initializing database at: %s", databasePath)

	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	registerConnectionHook()

	conn, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}

	// Use only 1 connection during migrations to prevent stale schema issues
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	if err := applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
		_, execErr := conn.ExecContext(ctx, stmt)
		return execErr
	}); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{
		conn:            conn,
		dialect:         DialectSQLite,
		stmts:           newStmtCache(),
		serializeWrites: true,
	}

	if err := db.migrate(migrationsFS, "migrations"); err != nil {
		db.stmts.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	conn.SetMaxOpenConns(0)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	log.Info().Msgf("Database initialized successfully at: %s", databasePath)

	return db, nil
}

// getStmt returns a prepared statement for the given query, preparing and
// caching it if necessary. Safe for concurrent use; a racing prepare of the
// same query is closed by the cache's deallocation func.
func (db *DB) getStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if s, found := db.stmts.Get(query); found && s != nil {
		return s, nil
	}

	s, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	db.stmts.Set(query, s, ttlcache.DefaultTTL)

	return s, nil
}

// isWriteQuery determines if a query is a write operation by its first word.
func isWriteQuery(query string) bool {
	q := strings.TrimLeftFunc(query, unicode.IsSpace)
	if q == "" {
		return false
	}

	upper := strings.ToUpper(q)
	return strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") ||
		strings.HasPrefix(upper, "UPSERT") ||
		strings.HasPrefix(upper, "REPLACE") ||
		strings.HasPrefix(upper, "DELETE")
}

// lockWrite takes the writer lock for SQLite write statements and returns
// the matching unlock func.
func (db *DB) lockWrite(query string) func() {
	if !db.serializeWrites || !isWriteQuery(query) {
		return func() {}
	}
	db.writeMu.Lock()
	return db.writeMu.Unlock
}

// ExecContext serializes SQLite writes and uses prepared statements when possible.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = db.bindQuery(query)
	unlock := db.lockWrite(query)
	defer unlock()

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.ExecContext(ctx, query, args...)
	}
	return stmt.ExecContext(ctx, args...)
}

// QueryContext uses reader pool and prepared statements
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = db.bindQuery(query)
	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.QueryContext(ctx, query, args...)
	}
	return stmt.QueryContext(ctx, args...)
}

// QueryRowContext uses the reader pool and prepared statements. Writes with
// RETURNING clauses are serialized like ExecContext.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	query = db.bindQuery(query)
	unlock := db.lockWrite(query)
	defer unlock()

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// BeginTx starts a transaction.
//
// Write transactions (opts == nil or opts.ReadOnly == false) hold the SQLite
// writer lock until Commit or Rollback, so a read-check-write sequence inside
// one transaction cannot interleave with another in-process writer.
// Read-only transactions never take the lock.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (dbinterface.TxQuerier, error) {
	readOnly := opts != nil && opts.ReadOnly

	release := func() {}
	if db.serializeWrites && !readOnly {
		db.writeMu.Lock()
		release = db.writeMu.Unlock
	}

	tx, err := db.conn.BeginTx(ctx, opts)
	if err != nil {
		release()
		return nil, err
	}
	return &Tx{tx: tx, db: db, release: release}, nil
}

func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		if db.dialect == DialectSQLite {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()
			if _, err := db.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
				log.Warn().Err(err).Msg("failed to run PRAGMA optimize during close")
			}
		}

		// deallocation of cached statements is handled by ttlcache
		db.stmts.Close()
		db.closeErr = db.conn.Close()
	})

	return db.closeErr
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

// migrate applies every not yet recorded .sql file under dir in name order,
// all inside one transaction.
func (db *DB) migrate(fsys embed.FS, dir string) error {
	ctx := context.Background()

	createMigrations := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`
	if db.dialect == DialectPostgres {
		createMigrations = `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// no-op if Commit succeeds
	defer tx.Rollback()

	if db.dialect == DialectPostgres {
		// Prevent concurrent migrators on the same database.
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(7305580117451047000)"); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, createMigrations); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, filename := range files {
		var count int
		if err := tx.QueryRowContext(ctx, db.bindQuery("SELECT COUNT(*) FROM migrations WHERE filename = ?"), filename).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", filename, err)
		}
		if count > 0 {
			continue
		}

		content, err := fsys.ReadFile(dir + "/" + filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if _, err := tx.ExecContext(ctx, db.bindQuery("INSERT INTO migrations (filename) VALUES (?)"), filename); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	if applied == 0 {
		log.Debug().Msg("No pending migrations")
		return nil
	}

	log.Info().Msgf("Applied %d migrations successfully", applied)
	return nil
}
