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

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/openbotauth/internal/nonce"
)

// PostgresCounters implements Counters against the fast per-day counter
// tables, using the same UPSERT-on-conflict idiom as the nonce store's
// atomic admit: concurrent writers racing the same day row are
// serialised by the unique constraint, not by application locking.
type PostgresCounters struct {
	pool *pgxpool.Pool
}

// NewPostgresCounters opens a pool against cfg and verifies connectivity.
func NewPostgresCounters(ctx context.Context, cfg nonce.Config) (*PostgresCounters, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry: ping database: %w", err)
	}
	return &PostgresCounters{pool: pool}, nil
}

// IncrSigned implements Counters.
func (p *PostgresCounters) IncrSigned(ctx context.Context, day string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO telemetry_day_counters (day, signed, verified, failed)
		VALUES ($1, 1, 0, 0)
		ON CONFLICT (day) DO UPDATE SET signed = telemetry_day_counters.signed + 1
	`, day)
	return err
}

// IncrOutcome implements Counters.
func (p *PostgresCounters) IncrOutcome(ctx context.Context, day string, verified bool) error {
	col := "failed"
	if verified {
		col = "verified"
	}
	query := fmt.Sprintf(`
		INSERT INTO telemetry_day_counters (day, signed, verified, failed)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (day) DO UPDATE SET %s = telemetry_day_counters.%s + 1
	`, col, col)
	_, err := p.pool.Exec(ctx, query, day)
	return err
}

// AddOrigin implements Counters.
func (p *PostgresCounters) AddOrigin(ctx context.Context, kid, origin string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO telemetry_agent_origins (kid, origin)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, kid, origin)
	return err
}

// SetLastSeen implements Counters.
func (p *PostgresCounters) SetLastSeen(ctx context.Context, kid string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO telemetry_agents (kid, last_seen_at)
		VALUES ($1, $2)
		ON CONFLICT (kid) DO UPDATE SET last_seen_at = $2
	`, kid, at)
	return err
}

// Close releases the connection pool.
func (p *PostgresCounters) Close() { p.pool.Close() }

// PostgresLog implements DurableLog as an append-only table, one row per
// verified or failed attempt.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog opens a pool against cfg and verifies connectivity.
func NewPostgresLog(ctx context.Context, cfg nonce.Config) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry: ping database: %w", err)
	}
	return &PostgresLog{pool: pool}, nil
}

// InsertAttempt implements DurableLog.
func (p *PostgresLog) InsertAttempt(ctx context.Context, a Attempt, coarseReason string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO telemetry_attempts (id, at, origin, verified, kid, coarse_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), a.At, a.Origin, a.Verified, a.Kid, coarseReason)
	return err
}

// Close releases the connection pool.
func (p *PostgresLog) Close() { p.pool.Close() }
