// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/domain"

	// Register pgx as database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed postgres_migrations/*.sql
var postgresMigrationsFS embed.FS

const (
	defaultPostgresMaxOpen = 25
	postgresMaxIdle        = 5
	postgresConnLifetime   = 5 * time.Minute
)

func newPostgres(dsn string, opts PostgresOptions) (*DB, error) {
	log.Info().Str("dsn", domain.RedactURL(dsn)).Msg("Initializing postgres database")

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres connection")
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultPostgresMaxOpen
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(min(postgresMaxIdle, maxOpen))
	conn.SetConnMaxLifetime(postgresConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	db := &DB{
		conn:    conn,
		dialect: DialectPostgres,
		stmts:   newStmtCache(),
	}

	if err := db.migrate(postgresMigrationsFS, "postgres_migrations"); err != nil {
		db.stmts.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "run postgres migrations")
	}

	log.Info().Int("maxOpenConns", maxOpen).Msg("Postgres database ready")
	return db, nil
}
