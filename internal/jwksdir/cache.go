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

package jwksdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sage-x-project/openbotauth/internal/metrics"
	"github.com/sage-x-project/openbotauth/pkg/version"
)

const defaultTTL = time.Hour

// Cache is a concurrency-safe, TTL/ETag-aware JWKS document cache with a
// single in-flight fetch per key, grounded on the singleflight-guarded
// resolve-and-cache pattern used elsewhere in this codebase for peer
// public-key resolution.
type Cache struct {
	cfg    Config
	client *http.Client

	mu      sync.RWMutex
	entries map[string]*Entry
	sf      singleflight.Group
}

// NewCache constructs a Cache whose outbound transport is SSRF-pinned per
// cfg.
func NewCache(cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Cache{
		cfg: cfg,
		client: &http.Client{
			Transport: pinnedTransport(cfg.AllowInsecureHTTP),
			// One redirect per fetch; via holds the requests already made,
			// so a second redirect means via has the original plus the
			// first redirect target. The target must clear the same scheme
			// and trust checks as the original URL.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 2 {
					return fmt.Errorf("%w: too many redirects", ErrFetchFailed)
				}
				if _, err := cfg.guardURL(req.URL.String()); err != nil {
					return err
				}
				if !cfg.trusted(req.URL.Hostname()) {
					return fmt.Errorf("%w: redirect to %s", ErrUntrustedDirectory, req.URL.Hostname())
				}
				return nil
			},
		},
		entries: make(map[string]*Entry),
	}
}

// Get returns the cached document for jwksURL, fetching (or refreshing)
// it if absent or expired. jwksURL's host must be in the trusted-
// directory allow-list.
func (c *Cache) Get(ctx context.Context, jwksURL string) (*Document, error) {
	u, err := c.cfg.guardURL(jwksURL)
	if err != nil {
		return nil, err
	}
	if !c.cfg.trusted(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedDirectory, u.Hostname())
	}

	key := normalizeKey(u)

	c.mu.RLock()
	entry := c.entries[key]
	c.mu.RUnlock()

	now := time.Now()
	if entry != nil && !entry.expired(now) {
		metrics.JWKSCacheHits.Inc()
		return entry.Document, nil
	}
	metrics.JWKSCacheMisses.Inc()

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check under the singleflight critical section: another
		// caller may have just refreshed this key.
		c.mu.RLock()
		fresh := c.entries[key]
		c.mu.RUnlock()
		if fresh != nil && !fresh.expired(time.Now()) {
			return fresh, nil
		}
		start := time.Now()
		entry, err := c.fetch(ctx, u, key, fresh)
		metrics.JWKSFetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.JWKSFetchFailures.WithLabelValues(fetchFailureCause(err)).Inc()
		}
		return entry, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry).Document, nil
}

func fetchFailureCause(err error) string {
	switch {
	case errors.Is(err, ErrInvalidJWKS):
		return "invalid_jwks"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	default:
		return "other"
	}
}

func (c *Cache) fetch(ctx context.Context, u *url.URL, key string, prior *Entry) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json, application/http-message-signatures-directory+json")
	req.Header.Set("User-Agent", version.UserAgent())
	if prior != nil && prior.ETag != "" {
		req.Header.Set("If-None-Match", prior.ETag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && prior != nil {
		entry := &Entry{
			Document:  prior.Document,
			ETag:      prior.ETag,
			FetchedAt: time.Now(),
			ExpiresAt: time.Now().Add(c.ttl(resp)),
		}
		c.store(key, entry)
		return entry, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(body)) > c.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrInvalidJWKS, c.cfg.MaxBytes)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWKS, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	entry := &Entry{
		Document:  &doc,
		ETag:      resp.Header.Get("ETag"),
		FetchedAt: time.Now(),
		ExpiresAt: time.Now().Add(c.ttl(resp)),
	}
	c.store(key, entry)
	return entry, nil
}

func (c *Cache) ttl(resp *http.Response) time.Duration {
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.TrimSpace(directive)
			if after, ok := strings.CutPrefix(directive, "max-age="); ok {
				if secs, err := strconv.Atoi(after); err == nil && secs >= 0 {
					return time.Duration(secs) * time.Second
				}
			}
		}
	}
	return c.cfg.DefaultTTL
}

func (c *Cache) store(key string, entry *Entry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Invalidate drops the cached entry for jwksURL, if any.
func (c *Cache) Invalidate(jwksURL string) {
	u, err := url.Parse(jwksURL)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, normalizeKey(u))
	c.mu.Unlock()
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

// normalizeKey strips the default port for the scheme and lowercases the
// host, so that equivalent URLs share one cache entry.
func normalizeKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	return strings.ToLower(u.Scheme) + "://" + host + u.EscapedPath()
}
