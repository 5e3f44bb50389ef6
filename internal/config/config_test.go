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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstituteEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{"simple substitution", "${TEST_VAR}", map[string]string{"TEST_VAR": "value123"}, "value123"},
		{"default used when unset", "${MISSING_VAR:default}", nil, "default"},
		{"default ignored when set", "${TEST_VAR:default}", map[string]string{"TEST_VAR": "actual"}, "actual"},
		{"multiple variables", "http://${HOST}:${PORT}/path", map[string]string{"HOST": "localhost", "PORT": "8080"}, "http://localhost:8080/path"},
		{"no variables", "plain string", nil, "plain string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			require.Equal(t, tt.expected, SubstituteEnvVars(tt.input))
		})
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 300, cfg.MaxSkewSec)
	require.Equal(t, 600, cfg.NonceTTLSec)
	require.Equal(t, 3600, cfg.JWKSTTLSec)
	require.Equal(t, 1<<20, cfg.JWKSMaxBytes)
	require.Equal(t, 3000, cfg.JWKSTimeoutMs)
	require.Equal(t, ModeObserve, cfg.Mode)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, DefaultDiscoveryPaths, cfg.DiscoveryPaths)
}

func TestLoadFromFile_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_skew_sec: 120\nbogus_key: true\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestLoadFromFile_Valid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
max_skew_sec: 120
nonce_ttl_sec: 900
trusted_directories:
  - idp.example
mode: require_verified
protected_paths:
  - /api
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 120, cfg.MaxSkewSec)
	require.Equal(t, 900, cfg.NonceTTLSec)
	require.Equal(t, ModeRequireVerified, cfg.Mode)
	require.Equal(t, []string{"idp.example"}, cfg.TrustedDirectories)
}

func TestLoad_FallsBackToDefaultsWithoutAnyFile(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "test"})
	require.NoError(t, err)
	require.Equal(t, 300, cfg.MaxSkewSec)
	require.Equal(t, ModeObserve, cfg.Mode)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("OBAUTH_LOG_LEVEL", "debug")
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "test"})
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_RequireVerifiedWithoutProtectedPathsWarns(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Mode = ModeRequireVerified

	issues := Validate(cfg)
	var found bool
	for _, iss := range issues {
		if iss.Field == "protected_paths" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidate_UnknownModeIsError(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Mode = "bogus"

	issues := Validate(cfg)
	var errLevel bool
	for _, iss := range issues {
		if iss.Field == "mode" && iss.Level == LevelError {
			errLevel = true
		}
	}
	require.True(t, errLevel)
}
