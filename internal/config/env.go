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
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values, falling back to the default when VAR is unset or empty.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

func substituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Environment = SubstituteEnvVars(cfg.Environment)
	for i, dir := range cfg.TrustedDirectories {
		cfg.TrustedDirectories[i] = SubstituteEnvVars(dir)
	}
	cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
	cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
	cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	cfg.Storage.Host = SubstituteEnvVars(cfg.Storage.Host)
	cfg.Storage.User = SubstituteEnvVars(cfg.Storage.User)
	cfg.Storage.Password = SubstituteEnvVars(cfg.Storage.Password)
	cfg.Storage.Database = SubstituteEnvVars(cfg.Storage.Database)
	cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
}

// applyEnvironmentOverrides lets a small set of process environment
// variables override loaded values, matching the highest-priority layer of
// the load order.
func applyEnvironmentOverrides(cfg *Config) {
	if level := os.Getenv("OBAUTH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("OBAUTH_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if mode := os.Getenv("OBAUTH_MODE"); mode != "" {
		cfg.Mode = Mode(mode)
	}
	switch os.Getenv("OBAUTH_TELEMETRY_ENABLED") {
	case "true":
		cfg.TelemetryEnabled = true
	case "false":
		cfg.TelemetryEnabled = false
	}
}

// GetEnvironment returns the current environment from OBAUTH_ENV or
// ENVIRONMENT, defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("OBAUTH_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction reports whether GetEnvironment is "production".
func IsProduction() bool {
	return GetEnvironment() == "production"
}
