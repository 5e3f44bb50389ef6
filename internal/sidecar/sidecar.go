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

// Package sidecar is the edge adapter: it classifies an incoming request
// as signed or unsigned, extracts exactly the headers the verifier is
// allowed to see, shields sensitive headers from ever reaching it, strips
// hop-by-hop headers when proxying, and translates a verify.Verdict into
// the X-OBAuth-* response-header ABI.
package sidecar

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sage-x-project/openbotauth/internal/sfv"
	"github.com/sage-x-project/openbotauth/internal/sigbase"
	"github.com/sage-x-project/openbotauth/internal/verify"
)

// signatureHeaders are the three headers whose presence classifies a
// request as signed.
var signatureHeaders = []string{"Signature-Input", "Signature", "Signature-Agent"}

// hopByHopHeaders are stripped on both legs of a proxied request, per the
// sidecar contract's hop-by-hop filtering rule.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Classification describes whether a request carries any signature
// material, and if it is missing one of the three required headers.
type Classification struct {
	Signed bool
	Reason verify.Reason // set only when Signed is true but incomplete
}

// Classify applies the signed-request rule: a request is signed if it
// carries any of Signature-Input, Signature, or Signature-Agent; a
// signed request missing one of its companions fails with a precise
// reason rather than being treated as unsigned.
func Classify(h http.Header) Classification {
	has := make(map[string]bool, 3)
	for _, name := range signatureHeaders {
		has[name] = h.Get(name) != ""
	}
	any := has["Signature-Input"] || has["Signature"] || has["Signature-Agent"]
	if !any {
		return Classification{Signed: false}
	}
	switch {
	case !has["Signature-Input"]:
		return Classification{Signed: true, Reason: verify.ReasonMissingSignatureInput}
	case !has["Signature"]:
		return Classification{Signed: true, Reason: verify.ReasonMissingSignature}
	case !has["Signature-Agent"]:
		return Classification{Signed: true, Reason: verify.ReasonMissingSignatureAgent}
	}
	return Classification{Signed: true}
}

// ExtractedRequest is the minimal header set the sidecar is willing to
// forward to the verifier engine, plus the label it extracted the
// covered-component list from.
type ExtractedRequest struct {
	Label   string
	Headers map[string][]string
}

// Extract builds the header set forwarded to the verifier: always the
// three signature headers and Host, plus every non-derived covered
// component named by the active label. Derived components (leading "@")
// are never forwarded as headers; the verifier reconstructs them from
// method and URL. A covered component naming a header absent from h is
// not an extraction error here; the verifier reports
// missing_covered_header itself, since an absent value is still a legal
// (if doomed) forward.
//
// If the covered list names a sensitive header (cookie, authorization,
// proxy-authorization, www-authenticate), Extract refuses outright: the
// sidecar never exposes these to the verifier.
func Extract(h http.Header, labelHint string) (*ExtractedRequest, error) {
	sigInput := h.Get("Signature-Input")
	dict, err := sfv.ParseDictionary(sigInput)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidSignatureInput, err)
	}
	label := labelHint
	if label == "" {
		labels := dict.Labels()
		if len(labels) == 0 {
			return nil, fmt.Errorf("%w: signature-input has no labels", errInvalidSignatureInput)
		}
		label = labels[0]
	}
	member, ok := dict.Get(label)
	if !ok {
		return nil, fmt.Errorf("%w: label %q not present", errInvalidSignatureInput, label)
	}

	out := map[string][]string{
		"Host": headerOrEmpty(h, "Host"),
	}
	for _, name := range signatureHeaders {
		if v := h.Values(name); len(v) > 0 {
			out[name] = v
		}
	}

	for _, comp := range sigbase.ComponentsFromInnerList(member.List) {
		name := strings.ToLower(strings.TrimSpace(comp.Name))
		if strings.HasPrefix(name, "@") {
			continue
		}
		if sigbase.SensitiveHeaders[name] {
			return nil, &SensitiveHeaderError{Header: name}
		}
		if v := h.Values(http.CanonicalHeaderKey(name)); len(v) > 0 {
			out[http.CanonicalHeaderKey(name)] = v
		}
	}

	return &ExtractedRequest{Label: label, Headers: out}, nil
}

func headerOrEmpty(h http.Header, name string) []string {
	if v := h.Values(name); len(v) > 0 {
		return v
	}
	if v := h.Get(name); v != "" {
		return []string{v}
	}
	return nil
}

// SensitiveHeaderError is returned by Extract when the covered-component
// list names a header the sidecar will never forward.
type SensitiveHeaderError struct {
	Header string
}

func (e *SensitiveHeaderError) Error() string {
	return fmt.Sprintf("sensitive header in signature: %s", e.Header)
}

var errInvalidSignatureInput = fmt.Errorf("invalid_structured_field")

// StripHopByHop removes hop-by-hop headers from h in place, for both the
// outbound request to the origin and the inbound response to the client.
func StripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// ApplyVerdict writes the external X-OBAuth-* response headers onto w,
// stripping CR/LF and other control characters from every attacker-
// influenced value first.
func ApplyVerdict(w http.Header, v *verify.Verdict) {
	if v.Verified {
		w.Set("X-OBAuth-Verified", "true")
		if v.Agent != nil {
			if v.Agent.ClientName != "" {
				w.Set("X-OBAuth-Agent", Sanitize(v.Agent.ClientName))
			}
			w.Set("X-OBAuth-JWKS-URL", Sanitize(v.Agent.JWKSURL))
			w.Set("X-OBAuth-Kid", Sanitize(v.Agent.Kid))
		}
		return
	}
	w.Set("X-OBAuth-Verified", "false")
	w.Set("X-OBAuth-Error", Sanitize(string(v.Reason)))
}

// Sanitize strips CR, LF, and other non-printable bytes from a value
// before it is ever echoed into a response header. No attacker-controlled
// string reaches a header unsanitised.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' || r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
