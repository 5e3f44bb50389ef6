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

package sidecar

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/sage-x-project/openbotauth/internal/config"
	"github.com/sage-x-project/openbotauth/internal/telemetry"
	"github.com/sage-x-project/openbotauth/internal/verify"
)

// Verifier is the subset of *verify.Engine the handler depends on, so
// tests can substitute a stub without driving the full pipeline.
type Verifier interface {
	Verify(ctx context.Context, req *verify.Request) *verify.Verdict
}

// Handler proxies to an origin, attaching verification verdicts as
// advisory headers in observe mode, or rejecting unverified requests to
// protected paths in require-verified mode.
type Handler struct {
	Engine    Verifier
	Telemetry *telemetry.Logger
	Mode      config.Mode
	Protected []string
	Origin    *url.URL

	proxy *httputil.ReverseProxy
}

// NewHandler constructs a Handler proxying to origin.
func NewHandler(engine Verifier, tel *telemetry.Logger, mode config.Mode, protected []string, origin *url.URL) *Handler {
	h := &Handler{Engine: engine, Telemetry: tel, Mode: mode, Protected: protected, Origin: origin}
	rp := httputil.NewSingleHostReverseProxy(origin)
	baseDirector := rp.Director
	rp.Director = func(r *http.Request) {
		baseDirector(r)
		StripHopByHop(r.Header)
	}
	rp.ModifyResponse = func(resp *http.Response) error {
		StripHopByHop(resp.Header)
		return nil
	}
	h.proxy = rp
	return h
}

// ServeHTTP implements the sidecar's request path: classify, verify (if
// signed), apply the response-header ABI, then either proxy or reject.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := Classify(r.Header)

	var verdict *verify.Verdict
	switch {
	case !class.Signed:
		verdict = &verify.Verdict{Verified: false, Reason: verify.ReasonMissingSignatureHeaders, Error: "request carries no signature headers"}
	case class.Reason != "":
		verdict = &verify.Verdict{Verified: false, Reason: class.Reason, Error: "incomplete signature headers"}
	default:
		verdict = h.verify(r)
	}

	ApplyVerdict(w.Header(), verdict)

	if h.Telemetry != nil {
		h.Telemetry.Record(r.Context(), telemetry.Attempt{
			Origin:   r.Host,
			Signed:   class.Signed,
			Verified: verdict.Verified,
			Reason:   verdict.Reason,
			Kid:      kidOf(verdict),
		})
	}

	if h.Mode == config.ModeRequireVerified && Protected(r.URL.Path, h.Protected) && !verdict.Verified {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	StripHopByHop(r.Header)
	h.proxy.ServeHTTP(w, r)
}

func kidOf(v *verify.Verdict) string {
	if v.Agent != nil {
		return v.Agent.Kid
	}
	return ""
}

func (h *Handler) verify(r *http.Request) *verify.Verdict {
	extracted, err := Extract(r.Header, "")
	if err != nil {
		if _, ok := err.(*SensitiveHeaderError); ok {
			return &verify.Verdict{Verified: false, Reason: verify.ReasonSensitiveHeaderInSignature, Error: err.Error()}
		}
		return &verify.Verdict{Verified: false, Reason: verify.ReasonInvalidStructuredField, Error: err.Error()}
	}
	// net/http moves Host out of r.Header into r.Host.
	if r.Host != "" {
		extracted.Headers["Host"] = []string{r.Host}
	}
	req := &verify.Request{
		Method:  r.Method,
		URL:     EffectiveURL(r),
		Headers: extracted.Headers,
	}
	return h.Engine.Verify(r.Context(), req)
}

// EffectiveURL reconstructs the request's effective target URI, honouring
// trusted X-Forwarded-Proto/X-Forwarded-Host hints set by an upstream
// load balancer ahead of this sidecar.
func EffectiveURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	u := &url.URL{Scheme: scheme, Host: host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}
