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

package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/openbotauth/crypto/keys"
	"github.com/sage-x-project/openbotauth/internal/jwksdir"
)

var (
	keygenClientName string
	keygenOutput     string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 key pair and its JWKS document",
	Long: `Generate a fresh Ed25519 key pair for signing requests and print the
JWKS document a directory would serve for it, keyed by the RFC 7638
thumbprint. The private key is printed separately, base64-encoded, and
is never written into the JWKS document itself.`,
	Example: `  # Generate a dev keypair for "Alice Bot"
  obauth-ctl keygen --client-name "Alice Bot"`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenClientName, "client-name", "", "client_name to embed in the generated JWKS document")
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "write the JWKS document to this file instead of stdout")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("unexpected public key type %T", kp.PublicKey())
	}
	priv, ok := kp.PrivateKey().(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("unexpected private key type %T", kp.PrivateKey())
	}

	kid := kp.ID()

	doc := jwksdir.Document{
		Keys: []jwksdir.JWK{{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: kid,
			X:   base64.RawURLEncoding.EncodeToString(pub),
			Alg: "ed25519",
			Use: "sig",
		}},
		ClientName: keygenClientName,
	}

	jwksJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JWKS document: %w", err)
	}

	fmt.Fprintf(os.Stderr, "kid:         %s\n", kid)
	fmt.Fprintf(os.Stderr, "private key: %s\n", base64.StdEncoding.EncodeToString(priv))
	fmt.Fprintln(os.Stderr, "(the private key is shown once; store it securely)")

	if keygenOutput == "" {
		fmt.Println(string(jwksJSON))
		return nil
	}
	if err := os.WriteFile(keygenOutput, append(jwksJSON, '\n'), 0o600); err != nil {
		return fmt.Errorf("write JWKS document: %w", err)
	}
	fmt.Fprintf(os.Stderr, "JWKS document written to %s\n", keygenOutput)
	return nil
}
