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

package sigbase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/openbotauth/internal/sfv"
)

func TestBuild_HappyPath(t *testing.T) {
	req := &Request{
		Method:    "GET",
		TargetURI: "https://origin.example/hello",
		Headers: map[string][]string{
			"Host": {"origin.example"},
		},
	}
	components := []Component{{Name: "@method"}, {Name: "@target-uri"}}
	params := Params{Created: 1700000000, HasCreated: true, KeyID: "K1", HasKeyID: true, Alg: "ed25519", HasAlg: true, Nonce: "n1", HasNonce: true}

	base, err := Build(req, "sig1", components, params)
	require.NoError(t, err)
	assert.Equal(t, "\"@method\": GET\n\"@target-uri\": https://origin.example/hello\n\"@signature-params\": (\"@method\" \"@target-uri\");keyid=\"K1\";alg=\"ed25519\";created=1700000000;nonce=\"n1\"", base)
}

func TestBuild_PreservesSignerParameterOrder(t *testing.T) {
	dict, err := sfv.ParseDictionary(`sig1=("@method");created=1700000000;keyid="K1";alg="ed25519";nonce="n1"`)
	require.NoError(t, err)
	member, ok := dict.Get("sig1")
	require.True(t, ok)

	req := &Request{Method: "GET", TargetURI: "https://origin.example/hello"}
	base, err := Build(req, "sig1", ComponentsFromInnerList(member.List), ParamsFromInput(member))
	require.NoError(t, err)
	assert.Contains(t, base, `"@signature-params": ("@method");created=1700000000;keyid="K1";alg="ed25519";nonce="n1"`)
}

func TestBuild_DictionaryKeySelector(t *testing.T) {
	req := &Request{
		Method:    "GET",
		TargetURI: "https://origin.example/hello",
		Headers: map[string][]string{
			"Signature-Agent": {`sig1="https://idp.example/jwks/alice.json"`},
		},
	}
	components := []Component{{Name: "@method"}, {Name: "signature-agent", KeySelector: "sig1"}}

	base, err := Build(req, "sig1", components, Params{})
	require.NoError(t, err)
	assert.Contains(t, base, `"signature-agent";key="sig1": "https://idp.example/jwks/alice.json"`)
}

func TestBuild_MissingCoveredHeader(t *testing.T) {
	req := &Request{Method: "GET", TargetURI: "https://origin.example/hello"}
	components := []Component{{Name: "@method"}, {Name: "content-type"}}

	_, err := Build(req, "sig1", components, Params{})
	require.Error(t, err)
	var missing *MissingHeaderError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "content-type", missing.Header)
}

func TestBuild_SensitiveHeaderBlocked(t *testing.T) {
	req := &Request{
		Method:    "GET",
		TargetURI: "https://origin.example/hello",
		Headers:   map[string][]string{"Authorization": {"Bearer xyz"}},
	}
	components := []Component{{Name: "@method"}, {Name: "authorization"}}

	_, err := Build(req, "sig1", components, Params{})
	require.Error(t, err)
	var sensitive *SensitiveHeaderError
	require.ErrorAs(t, err, &sensitive)
	assert.Equal(t, "authorization", sensitive.Header)
}

func TestBuild_SensitiveHeaderBlockedEvenWhenAbsent(t *testing.T) {
	req := &Request{Method: "GET", TargetURI: "https://origin.example/hello"}
	components := []Component{{Name: "@method"}, {Name: "authorization"}}

	_, err := Build(req, "sig1", components, Params{})
	require.Error(t, err)
	var sensitive *SensitiveHeaderError
	require.ErrorAs(t, err, &sensitive)
}

func TestAuthorityOf_OmitsDefaultPort(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://origin.example:443/x", "origin.example"},
		{"http://origin.example:80/x", "origin.example"},
		{"https://origin.example:8443/x", "origin.example:8443"},
	}
	for _, tt := range tests {
		req := &Request{Method: "GET", TargetURI: tt.uri}
		base, err := Build(req, "sig1", []Component{{Name: "@authority"}}, Params{})
		require.NoError(t, err)
		assert.Contains(t, base, `"@authority": `+tt.want)
	}
}

func TestBuild_EmptyPathBecomesRoot(t *testing.T) {
	req := &Request{Method: "GET", TargetURI: "https://origin.example"}
	base, err := Build(req, "sig1", []Component{{Name: "@path"}}, Params{})
	require.NoError(t, err)
	assert.Contains(t, base, `"@path": /`)
}

func TestBuild_RequestTargetIncludesQuery(t *testing.T) {
	req := &Request{Method: "POST", TargetURI: "https://origin.example/a/b?x=1"}
	base, err := Build(req, "sig1", []Component{{Name: "@request-target"}}, Params{})
	require.NoError(t, err)
	assert.Contains(t, base, `"@request-target": POST /a/b?x=1`)
}
