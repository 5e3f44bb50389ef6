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

// Package jwksdir fetches and caches JWKS documents from identity-URL
// directories: well-known path discovery, SSRF-guarded fetching, and a
// singleflight-deduplicated TTL/ETag cache.
package jwksdir

import (
	"errors"
	"time"
)

// JWK is one entry of a JWKS document's keys array. Only Ed25519 OKP keys
// are usable by the verifier; other kty/crv values are kept but ignored.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	Kid string `json:"kid"`
	X   string `json:"x,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	X5c []string `json:"x5c,omitempty"`
	X5u string `json:"x5u,omitempty"`
}

// Document is a fetched JWKS document.
type Document struct {
	Keys       []JWK  `json:"keys"`
	ClientName string `json:"client_name,omitempty"`
}

// FindKey returns the first Ed25519 key whose kid matches exactly. kids
// are full RFC 7638 thumbprints; a truncated prefix never matches.
func (d *Document) FindKey(kid string) (*JWK, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Keys {
		k := &d.Keys[i]
		if k.Kid == kid && k.Kty == "OKP" && k.Crv == "Ed25519" && k.X != "" {
			return k, true
		}
	}
	return nil, false
}

// Validate enforces the JWKS document invariants: a non-empty keys array
// where at least one element carries both kid and x.
func (d *Document) Validate() error {
	if d == nil || len(d.Keys) == 0 {
		return ErrInvalidJWKS
	}
	for _, k := range d.Keys {
		if k.Kid != "" && k.X != "" {
			return nil
		}
	}
	return ErrInvalidJWKS
}

// Entry is one cached JWKS document with its freshness bookkeeping.
type Entry struct {
	Document  *Document
	ETag      string
	FetchedAt time.Time
	ExpiresAt time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return e == nil || !now.Before(e.ExpiresAt)
}

// Sentinel errors mapped 1:1 onto the closed verdict-reason taxonomy.
var (
	ErrUntrustedDirectory = errors.New("untrusted_directory")
	ErrDiscoveryFailed    = errors.New("jwks_discovery_failed")
	ErrFetchFailed        = errors.New("jwks_fetch_failed")
	ErrInvalidJWKS        = errors.New("invalid_jwks")
)

// DefaultDiscoveryPaths is the well-known probe order used when the
// Signature-Agent value is an identity URL rather than a direct JWKS URL.
var DefaultDiscoveryPaths = []string{
	"/.well-known/http-message-signatures-directory",
	"/.well-known/jwks.json",
	"/.well-known/openbotauth/jwks.json",
	"/jwks.json",
}

// Config tunes fetch limits and trust boundaries; normally populated from
// internal/config.Config.
type Config struct {
	DefaultTTL         time.Duration
	MaxBytes           int64
	Timeout            time.Duration
	TrustedDirectories []string
	DiscoveryPaths     []string
	AllowInsecureHTTP  bool
}

func (c Config) discoveryPaths() []string {
	if len(c.DiscoveryPaths) > 0 {
		return c.DiscoveryPaths
	}
	return DefaultDiscoveryPaths
}
