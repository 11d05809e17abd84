// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pluginstore/registry/internal/domain"
)

const (
	defaultPostgresPort    = 5432
	defaultSSLMode         = "disable"
	defaultConnectTimeout  = 10 * time.Second
	postgresApplicationTag = "plugin-registry"
)

// PostgresOptions describe a Postgres connection. DSN wins over the
// individual fields when set.
type PostgresOptions struct {
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	ConnectTimeout time.Duration
	MaxOpenConns   int
}

type OpenOptions struct {
	Engine     string
	SQLitePath string
	Postgres   PostgresOptions
}

// Open connects to the configured engine and applies pending migrations.
func Open(opts OpenOptions) (*DB, error) {
	dialect, err := parseDialect(opts.Engine)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, errors.New("sqlite database path is required")
		}
		return New(opts.SQLitePath)
	}

	dsn, err := opts.Postgres.connString()
	if err != nil {
		return nil, err
	}
	return newPostgres(dsn, opts.Postgres)
}

func OpenFromConfig(cfg *domain.Config) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	return Open(OpenOptions{
		Engine:     cfg.DatabaseEngine,
		SQLitePath: cfg.DatabasePath,
		Postgres: PostgresOptions{
			DSN:            cfg.DatabaseDSN,
			Host:           cfg.DatabaseHost,
			Port:           cfg.DatabasePort,
			User:           cfg.DatabaseUser,
			Password:       cfg.DatabasePassword,
			Database:       cfg.DatabaseName,
			SSLMode:        cfg.DatabaseSSLMode,
			ConnectTimeout: time.Duration(cfg.DatabaseConnectTimeout) * time.Second,
			MaxOpenConns:   cfg.DatabaseMaxOpenConns,
		},
	})
}

func (o PostgresOptions) connString() (string, error) {
	if dsn := strings.TrimSpace(o.DSN); dsn != "" {
		return dsn, nil
	}

	host := strings.TrimSpace(o.Host)
	user := strings.TrimSpace(o.User)
	name := strings.TrimSpace(o.Database)
	var missing []string
	for _, field := range []struct{ name, value string }{{"host", host}, {"user", user}, {"database", name}} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return "", errors.Errorf("postgres connection needs a dsn or %s", strings.Join(missing, ", "))
	}

	port := o.Port
	if port <= 0 {
		port = defaultPostgresPort
	}
	sslMode := strings.TrimSpace(o.SSLMode)
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(timeout/time.Second)))
	q.Set("application_name", postgresApplicationTag)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, o.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + name,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
