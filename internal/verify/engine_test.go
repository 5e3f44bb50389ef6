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

package verify

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/openbotauth/internal/jwksdir"
	"github.com/sage-x-project/openbotauth/internal/nonce"
)

const testCreated = 1700000000

func newTestServer(t *testing.T, kid string, pub ed25519.PublicKey) *httptest.Server {
	t.Helper()
	doc := jwksdir.Document{
		Keys: []jwksdir.JWK{{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: kid,
			X:   base64.RawURLEncoding.EncodeToString(pub),
		}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func newEngine(t *testing.T, trustedHost string) *Engine {
	t.Helper()
	cache := jwksdir.NewCache(jwksdir.Config{
		AllowInsecureHTTP: true,
		TrustedDirectories: []string{trustedHost},
	})
	return &Engine{
		JWKS:    cache,
		Nonces:  nonce.NewMemoryStore(time.Minute),
		Options: DefaultOptions(),
		Now:     func() time.Time { return time.Unix(testCreated+5, 0) },
	}
}

func signBase(t *testing.T, priv ed25519.PrivateKey, base string) []byte {
	t.Helper()
	return ed25519.Sign(priv, []byte(base))
}

func buildRequest(method, targetURI, sigInput, sig, agent string) *Request {
	return &Request{
		Method: method,
		URL:    targetURI,
		Headers: map[string][]string{
			"Signature-Input": {sigInput},
			"Signature":       {sig},
			"Signature-Agent": {agent},
			"Host":            {"origin.example"},
		},
	}
}

func TestEngine_HappyPath(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	srv := newTestServer(t, "K1", pub)
	defer srv.Close()
	host, _, err2 := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err2)

	sigInput := fmt.Sprintf(`sig1=("@method" "@target-uri");created=%d;keyid="K1";alg="ed25519";nonce="n1"`, testCreated)
	base := `"@method": GET
"@target-uri": https://origin.example/hello
"@signature-params": ("@method" "@target-uri");created=1700000000;keyid="K1";alg="ed25519";nonce="n1"`

	sigBytes := signBase(t, priv, base)
	sig := fmt.Sprintf("sig1=:%s:", base64.StdEncoding.EncodeToString(sigBytes))
	agent := srv.URL + "/jwks.json"

	req := buildRequest("GET", "https://origin.example/hello", sigInput, sig, agent)

	engine := newEngine(t, host)
	verdict := engine.Verify(context.Background(), req)

	require.True(t, verdict.Verified, "verdict error: %s (%s)", verdict.Error, verdict.Reason)
	require.NotNil(t, verdict.Agent)
	require.Equal(t, "K1", verdict.Agent.Kid)
	require.EqualValues(t, testCreated, verdict.Created)
}

func TestEngine_ReplayRejectedOnSecondAttempt(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	srv := newTestServer(t, "K1", pub)
	defer srv.Close()
	host, _, err2 := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err2)

	sigInput := fmt.Sprintf(`sig1=("@method" "@target-uri");created=%d;keyid="K1";alg="ed25519";nonce="n1"`, testCreated)
	base := `"@method": GET
"@target-uri": https://origin.example/hello
"@signature-params": ("@method" "@target-uri");created=1700000000;keyid="K1";alg="ed25519";nonce="n1"`
	sigBytes := signBase(t, priv, base)
	sig := fmt.Sprintf("sig1=:%s:", base64.StdEncoding.EncodeToString(sigBytes))
	agent := srv.URL + "/jwks.json"

	req := buildRequest("GET", "https://origin.example/hello", sigInput, sig, agent)
	engine := newEngine(t, host)

	first := engine.Verify(context.Background(), req)
	require.True(t, first.Verified)

	second := engine.Verify(context.Background(), req)
	require.False(t, second.Verified)
	require.Equal(t, ReasonNonceReplay, second.Reason)
}

func TestEngine_SensitiveHeaderBlocked(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	srv := newTestServer(t, "K1", pub)
	defer srv.Close()
	host, _, err2 := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err2)

	sigInput := fmt.Sprintf(`sig1=("@method" "authorization");created=%d;keyid="K1";alg="ed25519";nonce="n1"`, testCreated)
	sig := `sig1=:AAAA:`
	agent := srv.URL + "/jwks.json"

	req := buildRequest("GET", "https://origin.example/hello", sigInput, sig, agent)
	engine := newEngine(t, host)

	verdict := engine.Verify(context.Background(), req)
	require.False(t, verdict.Verified)
	require.Equal(t, ReasonSensitiveHeaderInSignature, verdict.Reason)
}

func TestEngine_ClockSkewRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	srv := newTestServer(t, "K1", pub)
	defer srv.Close()
	host, _, err2 := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err2)

	sigInput := fmt.Sprintf(`sig1=("@method");created=%d;keyid="K1";alg="ed25519";nonce="n1"`, testCreated)
	base := `"@method": GET
"@signature-params": ("@method");created=1700000000;keyid="K1";alg="ed25519";nonce="n1"`
	sigBytes := signBase(t, priv, base)
	sig := fmt.Sprintf("sig1=:%s:", base64.StdEncoding.EncodeToString(sigBytes))
	agent := srv.URL + "/jwks.json"

	req := buildRequest("GET", "https://origin.example/hello", sigInput, sig, agent)
	engine := newEngine(t, host)
	engine.Now = func() time.Time { return time.Unix(testCreated+1000, 0) }

	verdict := engine.Verify(context.Background(), req)
	require.False(t, verdict.Verified)
	require.Equal(t, ReasonClockSkew, verdict.Reason)
}

func TestEngine_MissingSignatureHeaders(t *testing.T) {
	engine := newEngine(t, "idp.example")
	req := &Request{Method: "GET", URL: "https://origin.example/hello"}

	verdict := engine.Verify(context.Background(), req)
	require.False(t, verdict.Verified)
	require.Equal(t, ReasonMissingSignatureHeaders, verdict.Reason)
}
