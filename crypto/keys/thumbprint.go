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

package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Ed25519Thumbprint computes the RFC 7638 JSON Web Key thumbprint for an
// Ed25519 public key, serialised over the canonical {"crv","kty","x"}
// member JSON per RFC 7638 §3.2. The result is the full, untruncated kid;
// key lookup in the verifier matches it for exact equality only.
func Ed25519Thumbprint(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("thumbprint: unexpected public key length %d", len(pub))
	}
	x := base64.RawURLEncoding.EncodeToString(pub)
	// RFC 7638 requires lexicographic member order in the hashed JSON;
	// for the fixed {crv, kty, x} triple that is exactly this literal.
	canonical := fmt.Sprintf(`{"crv":"Ed25519","kty":"OKP","x":"%s"}`, x)
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
