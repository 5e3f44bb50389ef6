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
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	sagecrypto "github.com/sage-x-project/openbotauth/crypto"
)

// ed25519KeyPair implements sagecrypto.KeyPair for Ed25519 keys. Its ID is
// the RFC 7638 thumbprint computed by Ed25519Thumbprint, the same kid the
// verifier matches against a JWKS document's key entries; there is no
// separate key-identification scheme in this repo.
type ed25519KeyPair struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	thumbprint string
}

// GenerateEd25519KeyPair generates a new Ed25519 key pair and computes its
// RFC 7638 thumbprint up front, so KeyPair.ID() is always the same kid a
// JWKS document generated from this key pair would carry.
func GenerateEd25519KeyPair() (sagecrypto.KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	thumbprint, err := Ed25519Thumbprint(publicKey)
	if err != nil {
		return nil, fmt.Errorf("compute kid: %w", err)
	}

	return &ed25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		thumbprint: thumbprint,
	}, nil
}

// PublicKey returns the public key.
func (kp *ed25519KeyPair) PublicKey() crypto.PublicKey {
	return kp.publicKey
}

// PrivateKey returns the private key.
func (kp *ed25519KeyPair) PrivateKey() crypto.PrivateKey {
	return kp.privateKey
}

// Type returns the key type.
func (kp *ed25519KeyPair) Type() sagecrypto.KeyType {
	return sagecrypto.KeyTypeEd25519
}

// Sign signs the given message.
func (kp *ed25519KeyPair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(kp.privateKey, message), nil
}

// Verify verifies the signature.
func (kp *ed25519KeyPair) Verify(message, signature []byte) error {
	if !ed25519.Verify(kp.publicKey, message, signature) {
		return sagecrypto.ErrInvalidSignature
	}
	return nil
}

// ID returns the RFC 7638 thumbprint kid for this key pair.
func (kp *ed25519KeyPair) ID() string {
	return kp.thumbprint
}
