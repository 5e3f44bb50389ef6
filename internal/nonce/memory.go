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
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// MemoryStore is a sharded, TTL-indexed hash map implementation of Store
// for single-node deployments. Each shard has its own mutex so admission
// of unrelated keys never contends.
type MemoryStore struct {
	shards [shardCount]*shard

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	sweepDone   chan struct{}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
}

// NewMemoryStore starts a MemoryStore with a background sweep every
// interval to bound memory growth; interval defaults to one minute.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = time.Minute
	}
	m := &MemoryStore{
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]time.Time)}
	}
	m.sweepTicker = time.NewTicker(interval)
	go m.sweepLoop()
	return m
}

func (m *MemoryStore) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return m.shards[h.Sum32()%shardCount]
}

// Admit implements Store.
func (m *MemoryStore) Admit(_ context.Context, keyid, nonce string, ttl time.Duration) (bool, error) {
	k := key(keyid, nonce)
	s := m.shardFor(k)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.entries[k]; ok && now.Before(expiry) {
		return false, nil // replay
	}
	s.entries[k] = now.Add(ttl)
	return true, nil
}

func (m *MemoryStore) sweepLoop() {
	defer close(m.sweepDone)
	for {
		select {
		case <-m.sweepTicker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *MemoryStore) sweep() {
	now := time.Now()
	for _, s := range m.shards {
		s.mu.Lock()
		for k, expiry := range s.entries {
			if now.After(expiry) {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

// Clear drops every admitted nonce. Operational only: it disables replay
// protection for entries already admitted until their signers resend
// with fresh nonces.
func (m *MemoryStore) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.entries = make(map[string]time.Time)
		s.mu.Unlock()
	}
}

// Close stops the background sweep.
func (m *MemoryStore) Close() error {
	m.sweepTicker.Stop()
	close(m.stopSweep)
	<-m.sweepDone
	return nil
}
