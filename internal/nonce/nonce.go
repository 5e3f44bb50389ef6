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

// Package nonce implements at-most-once admission of (keyid, nonce) pairs
// within a sliding TTL window: a memory-backed sharded map for single-node
// deployments, and a Postgres-backed set-if-absent-with-expiry primitive
// for distributed ones. The verifier engine depends only on Store.
package nonce

import (
	"context"
	"time"
)

// Store admits a (keyid, nonce) pair exactly once within ttl. Admit must
// be atomic under concurrent callers racing the same pair: exactly one
// observes fresh=true.
type Store interface {
	Admit(ctx context.Context, keyid, nonce string, ttl time.Duration) (fresh bool, err error)
	Close() error
}

// key is the uniqueness domain for admission: the (keyid, nonce) pair,
// not the nonce alone.
func key(keyid, nonce string) string {
	return keyid + "\x00" + nonce
}
