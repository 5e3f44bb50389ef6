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

// DefaultDiscoveryPaths mirrors internal/jwksdir's well-known probe order.
var DefaultDiscoveryPaths = []string{
	"/.well-known/http-message-signatures-directory",
	"/.well-known/jwks.json",
	"/.well-known/openbotauth/jwks.json",
	"/jwks.json",
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MaxSkewSec == 0 {
		cfg.MaxSkewSec = 300
	}
	if cfg.NonceTTLSec == 0 {
		cfg.NonceTTLSec = 600
	}
	if cfg.JWKSTTLSec == 0 {
		cfg.JWKSTTLSec = 3600
	}
	if cfg.JWKSMaxBytes == 0 {
		cfg.JWKSMaxBytes = 1 << 20
	}
	if cfg.JWKSTimeoutMs == 0 {
		cfg.JWKSTimeoutMs = 3000
	}
	if len(cfg.DiscoveryPaths) == 0 {
		cfg.DiscoveryPaths = DefaultDiscoveryPaths
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeObserve
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}
