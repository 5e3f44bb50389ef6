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

package nonce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AdmitOnce(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	defer m.Close()

	fresh, err := m.Admit(context.Background(), "K1", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = m.Admit(context.Background(), "K1", "n1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh, "replay of the same (keyid, nonce) pair must not be admitted twice")
}

func TestMemoryStore_DifferentKeyidsAreIndependent(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	defer m.Close()

	fresh1, err := m.Admit(context.Background(), "K1", "n1", time.Minute)
	require.NoError(t, err)
	fresh2, err := m.Admit(context.Background(), "K2", "n1", time.Minute)
	require.NoError(t, err)

	assert.True(t, fresh1)
	assert.True(t, fresh2, "the same nonce under a different keyid is a distinct uniqueness domain")
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	defer m.Close()

	fresh, err := m.Admit(context.Background(), "K1", "n1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, fresh)

	time.Sleep(20 * time.Millisecond)

	fresh, err = m.Admit(context.Background(), "K1", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "a pair may be re-admitted once its TTL has elapsed")
}

func TestMemoryStore_ConcurrentAdmitExactlyOneFresh(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	defer m.Close()

	const n = 50
	var wg sync.WaitGroup
	results := make([]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fresh, err := m.Admit(context.Background(), "K1", "race", time.Minute)
			assert.NoError(t, err)
			results[i] = fresh
		}(i)
	}
	wg.Wait()

	freshCount := 0
	for _, r := range results {
		if r {
			freshCount++
		}
	}
	assert.Equal(t, 1, freshCount, "exactly one concurrent admission attempt must observe fresh")
}
