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

package jwksdir

import (
	"context"
	"fmt"
	"strings"
)

// StripWrapping removes surrounding angle brackets and/or quotes from a
// raw Signature-Agent value; agents in the wild send both wrappers.
func StripWrapping(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		s = s[1 : len(s)-1]
	}
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return s
}

// looksLikeDirectJWKSURL reports whether the identity URL's path already
// names a JWKS document, so discovery can be skipped.
func looksLikeDirectJWKSURL(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.HasSuffix(lower, ".json") {
		return true
	}
	for _, seg := range []string{"/jwks", "/.well-known/jwks"} {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return false
}

// Resolve turns a (stripped) Signature-Agent identity value into the
// concrete JWKS URL to fetch. If it already names a document directly, it
// is returned unchanged; otherwise each configured discovery path is
// probed under the same origin and the first one that resolves to a
// valid, trusted JWKS document wins.
func (c *Cache) Resolve(ctx context.Context, identityValue string) (string, *Document, error) {
	value := StripWrapping(identityValue)
	if value == "" {
		return "", nil, fmt.Errorf("%w: empty signature-agent value", ErrDiscoveryFailed)
	}

	if looksLikeDirectJWKSURL(value) {
		doc, err := c.Get(ctx, value)
		if err != nil {
			return "", nil, err
		}
		return value, doc, nil
	}

	origin := strings.TrimRight(value, "/")
	var lastErr error
	for _, path := range c.cfg.discoveryPaths() {
		candidate := origin + path
		doc, err := c.Get(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		return candidate, doc, nil
	}

	if lastErr == nil {
		lastErr = ErrDiscoveryFailed
	}
	return "", nil, fmt.Errorf("%w: no discovery path resolved under %s (%v)", ErrDiscoveryFailed, origin, lastErr)
}
