// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the PostgreSQL connection parameters for a distributed
// deployment of the nonce store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c Config) connString() string {
	return c.ConnString()
}

// ConnString builds the libpq connection string for this configuration.
// Exported so other Postgres-backed components sharing the same
// connection parameters (telemetry's counters and durable log) don't
// need to duplicate it.
func (c Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// PostgresStore admits nonces via a single atomic INSERT ... ON CONFLICT
// statement that only takes over an existing row once its expires_at has
// passed: the admission primitive is an unexpired row's existence, not a
// separate check-then-insert transaction, so two concurrent callers
// racing the same (keyid, nonce) pair are serialised by the unique
// constraint itself rather than by application-level locking.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and verifies connectivity before
// returning.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("nonce: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("nonce: ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Admit implements Store.
func (p *PostgresStore) Admit(ctx context.Context, keyid, nonce string, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO nonces (keyid, nonce, admitted_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (keyid, nonce) DO UPDATE
			SET admitted_at = NOW(), expires_at = EXCLUDED.expires_at
			WHERE nonces.expires_at <= NOW()
	`
	tag, err := p.pool.Exec(ctx, query, keyid, nonce, time.Now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("nonce: admit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpired removes admitted nonces past their TTL; intended to run
// on a periodic housekeeping schedule, not the hot path.
func (p *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM nonces WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("nonce: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
