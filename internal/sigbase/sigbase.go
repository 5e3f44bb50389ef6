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

// Package sigbase reconstructs the RFC 9421 signature base string for one
// Signature-Input label: method, target URI, and headers in, the exact
// byte sequence that was signed out.
package sigbase

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sage-x-project/openbotauth/internal/sfv"
)

// SensitiveHeaders is the set of header names a signature may never cover,
// because the sidecar contract guarantees they are never forwarded.
var SensitiveHeaders = map[string]bool{
	"cookie":              true,
	"authorization":       true,
	"proxy-authorization": true,
	"www-authenticate":    true,
}

// MissingHeaderError is returned when a covered component names a header
// that is neither present in the request nor a derived component.
type MissingHeaderError struct {
	Header string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing covered header: %s", e.Header)
}

// SensitiveHeaderError is returned when the covered-component list names a
// header in SensitiveHeaders.
type SensitiveHeaderError struct {
	Header string
}

func (e *SensitiveHeaderError) Error() string {
	return fmt.Sprintf("sensitive header in signature: %s", e.Header)
}

// Request is the subset of an HTTP request the builder needs. Headers are
// looked up case-insensitively; TargetURI is the already-reconstructed
// effective URI (honouring any trusted X-Forwarded-* hints applied
// upstream by the sidecar).
type Request struct {
	Method    string
	TargetURI string
	Headers   map[string][]string
}

func (r *Request) header(name string) ([]string, bool) {
	name = strings.ToLower(name)
	for k, v := range r.Headers {
		if strings.ToLower(k) == name {
			return v, len(v) > 0 || hasKey(r.Headers, k)
		}
	}
	return nil, false
}

func hasKey(m map[string][]string, k string) bool {
	_, ok := m[k]
	return ok
}

// Component is one entry of a label's covered-component list: either a
// derived component (Name starting with "@"), a plain header name, or a
// header name with a dictionary-member selector (KeySelector non-empty).
type Component struct {
	Name        string
	KeySelector string
}

// Params carries the parameter tail of the active label's Signature-Input
// entry, re-serialised verbatim onto the final "@signature-params" line.
// Order records the parameter keys in the order the signer declared them;
// the tail must reproduce that order byte-for-byte or the base diverges
// from what was signed. An empty Order falls back to the canonical
// (keyid, alg, created, expires, nonce, tag) order.
type Params struct {
	Created    int64
	HasCreated bool
	Expires    int64
	HasExpires bool
	Nonce      string
	HasNonce   bool
	KeyID      string
	HasKeyID   bool
	Alg        string
	HasAlg     bool
	Tag        string
	HasTag     bool

	Order []string
}

// ParamsFromInput captures the parameter tail of a parsed Signature-Input
// member, preserving the signer's declaration order.
func ParamsFromInput(member sfv.Item) Params {
	var p Params
	if member.Params == nil {
		return p
	}
	p.Order = member.Params.Labels()
	if v, ok := member.Params.Get("created"); ok && v.Kind == sfv.KindInteger {
		p.Created, p.HasCreated = v.Int, true
	}
	if v, ok := member.Params.Get("expires"); ok && v.Kind == sfv.KindInteger {
		p.Expires, p.HasExpires = v.Int, true
	}
	if v, ok := member.ParamString("nonce"); ok {
		p.Nonce, p.HasNonce = v, true
	}
	if v, ok := member.ParamString("keyid"); ok {
		p.KeyID, p.HasKeyID = v, true
	}
	if v, ok := member.ParamString("alg"); ok {
		p.Alg, p.HasAlg = v, true
	}
	if v, ok := member.ParamString("tag"); ok {
		p.Tag, p.HasTag = v, true
	}
	return p
}

// Build produces the RFC 9421 §2.5 signature base: one line per covered
// component followed by the "@signature-params" line, joined with "\n"
// and no trailing newline.
func Build(req *Request, label string, components []Component, params Params) (string, error) {
	lines := make([]string, 0, len(components)+1)

	for _, comp := range components {
		line, err := canonicalizeComponent(req, comp)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	lines = append(lines, buildSignatureParamsLine(components, params))
	return strings.Join(lines, "\n"), nil
}

func canonicalizeComponent(req *Request, comp Component) (string, error) {
	name := strings.ToLower(strings.TrimSpace(comp.Name))

	if strings.HasPrefix(name, "@") {
		if comp.KeySelector != "" {
			return "", &MissingHeaderError{Header: name}
		}
		return canonicalizeDerived(req, name)
	}

	if SensitiveHeaders[name] {
		return "", &SensitiveHeaderError{Header: name}
	}

	if comp.KeySelector != "" {
		return canonicalizeDictionaryMember(req, name, comp.KeySelector)
	}
	return canonicalizeHeader(req, name)
}

func canonicalizeDerived(req *Request, name string) (string, error) {
	u, err := url.Parse(req.TargetURI)
	if err != nil {
		return "", fmt.Errorf("invalid target uri: %w", err)
	}

	var value string
	switch name {
	case "@method":
		value = strings.ToUpper(req.Method)

	case "@target-uri":
		value = req.TargetURI

	case "@authority":
		value = authorityOf(u)

	case "@scheme":
		value = strings.ToLower(u.Scheme)

	case "@path":
		value = u.EscapedPath()
		if value == "" {
			value = "/"
		}

	case "@query":
		if u.RawQuery != "" {
			value = "?" + u.RawQuery
		} else {
			value = ""
		}

	case "@request-target":
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		value = fmt.Sprintf("%s %s", strings.ToUpper(req.Method), path)

	case "@status":
		return "", fmt.Errorf("@status is not available for requests")

	default:
		return "", &MissingHeaderError{Header: name}
	}

	return fmt.Sprintf(`"%s": %s`, name, value), nil
}

// authorityOf returns lowercased host[:port], omitting the default port
// for the URL's scheme.
func authorityOf(u *url.URL) string {
	host := strings.ToLower(u.Host)
	scheme := strings.ToLower(u.Scheme)
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		host = strings.TrimSuffix(host, ":443")
	}
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		host = strings.TrimSuffix(host, ":80")
	}
	return host
}

func canonicalizeHeader(req *Request, name string) (string, error) {
	values, ok := req.header(name)
	if !ok {
		return "", &MissingHeaderError{Header: name}
	}
	joined := strings.TrimSpace(strings.Join(values, ", "))
	return fmt.Sprintf(`"%s": %s`, name, joined), nil
}

// canonicalizeDictionaryMember selects member keySelector from the
// structured-dictionary value of header name (e.g. Signature-Agent in
// dictionary form) and serialises it per RFC 8941.
func canonicalizeDictionaryMember(req *Request, name, keySelector string) (string, error) {
	values, ok := req.header(name)
	if !ok || len(values) == 0 {
		return "", &MissingHeaderError{Header: name}
	}

	dict, err := sfv.ParseDictionary(values[0])
	if err != nil {
		return "", err
	}
	member, ok := dict.Get(keySelector)
	if !ok {
		return "", &MissingHeaderError{Header: fmt.Sprintf(`%s;key="%s"`, name, keySelector)}
	}

	serialised, err := serialiseItem(member)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`"%s";key="%s": %s`, name, keySelector, serialised), nil
}

func serialiseItem(it sfv.Item) (string, error) {
	switch it.Kind {
	case sfv.KindString, sfv.KindToken:
		return fmt.Sprintf("%q", it.Str), nil
	case sfv.KindInteger:
		return fmt.Sprintf("%d", it.Int), nil
	default:
		return "", fmt.Errorf("unsupported dictionary-member shape for signature base")
	}
}

// buildSignatureParamsLine re-serialises the covered-component list and
// parameters onto the final "@signature-params" line, in the signer's
// declared parameter order when known.
func buildSignatureParamsLine(components []Component, params Params) string {
	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c.KeySelector != "" {
			parts = append(parts, fmt.Sprintf(`"%s";key="%s"`, c.Name, c.KeySelector))
			continue
		}
		parts = append(parts, fmt.Sprintf("%q", c.Name))
	}

	order := params.Order
	if len(order) == 0 {
		order = []string{"keyid", "alg", "created", "expires", "nonce", "tag"}
	}

	var tail []string
	for _, key := range order {
		switch key {
		case "keyid":
			if params.HasKeyID {
				tail = append(tail, fmt.Sprintf(`keyid="%s"`, params.KeyID))
			}
		case "alg":
			if params.HasAlg {
				tail = append(tail, fmt.Sprintf(`alg="%s"`, params.Alg))
			}
		case "created":
			if params.HasCreated {
				tail = append(tail, fmt.Sprintf("created=%d", params.Created))
			}
		case "expires":
			if params.HasExpires {
				tail = append(tail, fmt.Sprintf("expires=%d", params.Expires))
			}
		case "nonce":
			if params.HasNonce {
				tail = append(tail, fmt.Sprintf(`nonce="%s"`, params.Nonce))
			}
		case "tag":
			if params.HasTag {
				tail = append(tail, fmt.Sprintf(`tag="%s"`, params.Tag))
			}
		}
	}

	list := "(" + strings.Join(parts, " ") + ")"
	if len(tail) > 0 {
		list += ";" + strings.Join(tail, ";")
	}
	return fmt.Sprintf(`"@signature-params": %s`, list)
}

// ComponentsFromInnerList converts a parsed Signature-Input inner list
// (sfv.Item of KindInnerList) into the Component slice Build expects.
func ComponentsFromInnerList(items []sfv.Item) []Component {
	out := make([]Component, 0, len(items))
	for _, it := range items {
		comp := Component{Name: it.Str}
		if key, ok := it.ParamString("key"); ok {
			comp.KeySelector = key
		}
		out = append(out, comp)
	}
	return out
}
