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

// Package config loads and validates the verifier's runtime configuration:
// freshness/TTL tuning, JWKS trust and discovery settings, sidecar mode and
// protected paths, plus the ambient logging and storage sub-configs every
// binary in this repo shares.
package config

import "time"

// Mode selects the sidecar's enforcement behaviour.
type Mode string

const (
	ModeObserve         Mode = "observe"
	ModeRequireVerified Mode = "require_verified"
)

// Config is the root configuration structure, loaded from YAML with
// environment-variable substitution and overridable by process environment
// variables.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	MaxSkewSec    int `yaml:"max_skew_sec" json:"max_skew_sec"`
	NonceTTLSec   int `yaml:"nonce_ttl_sec" json:"nonce_ttl_sec"`
	JWKSTTLSec    int `yaml:"jwks_ttl_sec" json:"jwks_ttl_sec"`
	JWKSMaxBytes  int `yaml:"jwks_max_bytes" json:"jwks_max_bytes"`
	JWKSTimeoutMs int `yaml:"jwks_timeout_ms" json:"jwks_timeout_ms"`

	TrustedDirectories []string `yaml:"trusted_directories" json:"trusted_directories"`
	DiscoveryPaths     []string `yaml:"discovery_paths" json:"discovery_paths"`

	Mode           Mode     `yaml:"mode" json:"mode"`
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`

	TelemetryEnabled bool `yaml:"telemetry_enabled" json:"telemetry_enabled"`

	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Storage   StorageConfig    `yaml:"storage" json:"storage"`
	Metrics   MetricsConfig    `yaml:"metrics" json:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// StorageConfig holds the Postgres DSN pieces shared by the nonce store and
// telemetry's durable log, when either is configured for the postgres
// backend rather than the in-memory default.
type StorageConfig struct {
	Backend  string `yaml:"backend" json:"backend"` // memory, postgres
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"sslmode" json:"sslmode"`
}

// MetricsConfig configures the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// MaxSkew returns MaxSkewSec as a time.Duration.
func (c *Config) MaxSkew() time.Duration { return time.Duration(c.MaxSkewSec) * time.Second }

// NonceTTL returns NonceTTLSec as a time.Duration.
func (c *Config) NonceTTL() time.Duration { return time.Duration(c.NonceTTLSec) * time.Second }

// JWKSTTL returns JWKSTTLSec as a time.Duration.
func (c *Config) JWKSTTL() time.Duration { return time.Duration(c.JWKSTTLSec) * time.Second }

// JWKSTimeout returns JWKSTimeoutMs as a time.Duration.
func (c *Config) JWKSTimeout() time.Duration {
	return time.Duration(c.JWKSTimeoutMs) * time.Millisecond
}
