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

package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, version, commit, branch, date string) {
	t.Helper()
	origVersion, origCommit, origBranch, origDate := Version, GitCommit, GitBranch, BuildDate
	t.Cleanup(func() {
		Version, GitCommit, GitBranch, BuildDate = origVersion, origCommit, origBranch, origDate
	})
	Version, GitCommit, GitBranch, BuildDate = version, commit, branch, date
}

func TestGet(t *testing.T) {
	info := Get()

	require.NotEmpty(t, info.Version)
	require.NotEmpty(t, info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	withBuildInfo(t, "1.0.0", "", "", "")
	assert.Contains(t, String(), "1.0.0")

	withBuildInfo(t, "1.0.0", "abcdef1234567890", "main", "2026-01-11")
	str := String()
	assert.Contains(t, str, "1.0.0")
	assert.Contains(t, str, "abcdef1", "commit hash should be truncated to seven characters")
	assert.Contains(t, str, "main")
}

func TestShort(t *testing.T) {
	withBuildInfo(t, "1.0.0", "", "", "")
	assert.Equal(t, "1.0.0", Short())

	withBuildInfo(t, "1.0.0", "abcdef1234567890", "", "")
	assert.Equal(t, "1.0.0-abcdef1", Short())
}

func TestUserAgent(t *testing.T) {
	withBuildInfo(t, "1.0.0", "", "", "")
	assert.Equal(t, "openbotauth/1.0.0", UserAgent())

	withBuildInfo(t, "1.0.0", "abcdef1234567890", "", "")
	assert.Equal(t, "openbotauth/1.0.0-abcdef1", UserAgent())
}

func TestGetModuleVersion(t *testing.T) {
	assert.NotEmpty(t, GetModuleVersion())
}

func TestGoVersion(t *testing.T) {
	require.NotEmpty(t, GoVersion)
	assert.True(t, strings.HasPrefix(GoVersion, "go"), "GoVersion should come from runtime.Version()")
}
