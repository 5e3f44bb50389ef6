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

package sfv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDictionary_SignatureInput(t *testing.T) {
	raw := `sig1=("@method" "@target-uri" "content-digest");created=1700000000;keyid="https://example.com/agents/bot#key-1";alg="ed25519"`

	dict, err := ParseDictionary(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"sig1"}, dict.Labels())

	member, ok := dict.Get("sig1")
	require.True(t, ok)
	require.Equal(t, KindInnerList, member.Kind)
	require.Len(t, member.List, 3)
	assert.Equal(t, "@method", member.List[0].Str)
	assert.Equal(t, "@target-uri", member.List[1].Str)
	assert.Equal(t, "content-digest", member.List[2].Str)

	created, ok := member.ParamInt("created")
	require.True(t, ok)
	assert.EqualValues(t, 1700000000, created)

	keyid, ok := member.ParamString("keyid")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/agents/bot#key-1", keyid)

	alg, ok := member.ParamString("alg")
	require.True(t, ok)
	assert.Equal(t, "ed25519", alg)
}

func TestParseDictionary_Signature(t *testing.T) {
	dict, err := ParseDictionary(`sig1=:AAECAw==:`)
	require.NoError(t, err)

	member, ok := dict.Get("sig1")
	require.True(t, ok)
	require.Equal(t, KindBytes, member.Kind)
	assert.Equal(t, []byte{0, 1, 2, 3}, member.Bytes)
}

func TestParseDictionary_MultipleMembers(t *testing.T) {
	dict, err := ParseDictionary(`sig1=("@method");created=1, sig2=("@method");created=2`)
	require.NoError(t, err)
	require.Equal(t, []string{"sig1", "sig2"}, dict.Labels())

	m2, ok := dict.Get("sig2")
	require.True(t, ok)
	created, ok := m2.ParamInt("created")
	require.True(t, ok)
	assert.EqualValues(t, 2, created)
}

func TestParseDictionary_ComponentWithKeyParam(t *testing.T) {
	dict, err := ParseDictionary(`sig1=("@query-param";name="id" "signature-agent")`)
	require.NoError(t, err)

	member, _ := dict.Get("sig1")
	require.Len(t, member.List, 2)

	name, ok := member.List[0].ParamString("name")
	require.True(t, ok)
	assert.Equal(t, "id", name)
	assert.Equal(t, "signature-agent", member.List[1].Str)
}

func TestParseDictionary_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty key before equals", `=("@method")`},
		{"unterminated inner list", `sig1=("@method"`},
		{"unterminated byte sequence", `sig1=:AAECAw`},
		{"trailing comma", `sig1=("@method"),`},
		{"bad separator in inner list", `sig1=("@method","@path")`},
		{"unterminated string", `sig1="abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDictionary(tt.raw)
			require.Error(t, err)
			var sfvErr *ErrInvalidStructuredField
			assert.ErrorAs(t, err, &sfvErr)
		})
	}
}

func TestParseInnerList_Standalone(t *testing.T) {
	items, err := ParseInnerList(`("@method" "@path";req)`)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "@method", items[0].Str)
	assert.Equal(t, "@path", items[1].Str)
}

func TestParseDictionary_SignatureAgentString(t *testing.T) {
	dict, err := ParseDictionary(`"https://verifier.example.com"`)
	require.Error(t, err)
	assert.Nil(t, dict)
}
