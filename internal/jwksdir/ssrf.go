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
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// blockedNetworks enumerates the loopback, link-local, and RFC 1918/IPv6
// ranges a JWKS fetch must never connect to.
var blockedNetworks = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isBlockedIP(ip net.IP) bool {
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// validateScheme rejects anything but https, or http when the config
// explicitly allows it for local development.
func (c Config) validateScheme(scheme string) error {
	switch strings.ToLower(scheme) {
	case "https":
		return nil
	case "http":
		if c.AllowInsecureHTTP {
			return nil
		}
		return fmt.Errorf("%w: http scheme disallowed outside development", ErrFetchFailed)
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrFetchFailed, scheme)
	}
}

// pinnedTransport builds an *http.Transport whose DialContext resolves the
// host once, rejects any resolved address in a blocked range, and pins the
// connection to the first surviving address, so a DNS answer that
// changes between validation and connect cannot smuggle a request past
// the guard (TOCTOU rebinding). allowPrivate disables the range check for
// local development, where JWKS endpoints live on loopback.
func pinnedTransport(allowPrivate bool) *http.Transport {
	dialer := &net.Dialer{}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}

			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("%w: dns lookup failed: %v", ErrFetchFailed, err)
			}
			if len(ips) == 0 {
				return nil, fmt.Errorf("%w: no addresses for %s", ErrFetchFailed, host)
			}

			var pinned net.IP
			for _, ip := range ips {
				if allowPrivate || !isBlockedIP(ip.IP) {
					pinned = ip.IP
					break
				}
			}
			if pinned == nil {
				return nil, fmt.Errorf("%w: %s resolves only to blocked addresses", ErrFetchFailed, host)
			}

			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(pinned.String(), port))
			if err != nil {
				return nil, err
			}

			// Re-check at connect time in case the dialer followed a
			// secondary address we didn't evaluate above.
			if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok && !allowPrivate && isBlockedIP(tcpAddr.IP) {
				conn.Close()
				return nil, fmt.Errorf("%w: connect-time address %s is blocked", ErrFetchFailed, tcpAddr.IP)
			}
			return conn, nil
		},
	}
}

// guardURL performs the static (non-DNS) portion of the SSRF guard: scheme
// validity and syntactic host sanity. DNS-dependent checks happen inside
// the pinned transport at dial time, since the guard must bind to the
// exact address that's connected to, not a prior resolution.
func (c Config) guardURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrFetchFailed)
	}
	if err := c.validateScheme(u.Scheme); err != nil {
		return nil, err
	}
	if ip := net.ParseIP(u.Hostname()); ip != nil && !c.AllowInsecureHTTP && isBlockedIP(ip) {
		return nil, fmt.Errorf("%w: literal address %s is blocked", ErrFetchFailed, ip)
	}
	return u, nil
}

// trusted reports whether host is in the configured allow-list. An empty
// allow-list trusts nothing; operators must opt agents in.
func (c Config) trusted(host string) bool {
	host = strings.ToLower(host)
	for _, h := range c.TrustedDirectories {
		if strings.ToLower(h) == host {
			return true
		}
	}
	return false
}
