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

package verify

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sage-x-project/openbotauth/internal/jwksdir"
	"github.com/sage-x-project/openbotauth/internal/metrics"
	"github.com/sage-x-project/openbotauth/internal/nonce"
	"github.com/sage-x-project/openbotauth/internal/sfv"
	"github.com/sage-x-project/openbotauth/internal/sigbase"
)

// Request mirrors the verifier RPC body: the minimal request surface the
// engine needs, already assembled by the sidecar.
type Request struct {
	Method  string
	URL     string
	Headers map[string][]string
	Body    []byte

	// JWKSURLOverride bypasses Signature-Agent resolution; used by tests
	// and the "optional-override-for-testing" RPC field.
	JWKSURLOverride string
}

func (r *Request) header(name string) (string, bool) {
	name = strings.ToLower(name)
	for k, v := range r.Headers {
		if strings.ToLower(k) == name {
			if len(v) == 0 {
				return "", true
			}
			return v[0], true
		}
	}
	return "", false
}

// Options tunes the pipeline's freshness and label-selection behaviour.
type Options struct {
	MaxSkew   time.Duration
	NonceTTL  time.Duration
	LabelHint string
}

// DefaultOptions matches the daemon's configuration defaults.
func DefaultOptions() Options {
	return Options{MaxSkew: 300 * time.Second, NonceTTL: 600 * time.Second}
}

// Engine drives the verification pipeline: parse, freshness, JWKS
// resolution, nonce admission, base reconstruction, signature check. It
// is pure with respect to its collaborators: it holds no per-request
// state beyond locals, and performs no I/O except through JWKS and
// Nonces.
type Engine struct {
	JWKS    *jwksdir.Cache
	Nonces  nonce.Store
	Options Options

	// Now is overridable for deterministic freshness tests; defaults to
	// time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Verify runs the full pipeline for one request and always returns a
// non-nil verdict; it never panics for malformed input.
func (e *Engine) Verify(ctx context.Context, req *Request) *Verdict {
	start := e.now()
	v := e.verify(ctx, req)
	metrics.VerifyDuration.Observe(e.now().Sub(start).Seconds())
	metrics.ObserveVerification(string(v.Reason), v.Verified && v.WeakFreshness)
	return v
}

func (e *Engine) verify(ctx context.Context, req *Request) *Verdict {
	sigInputRaw, hasInput := req.header("signature-input")
	sigRaw, hasSig := req.header("signature")
	agentRaw, hasAgent := req.header("signature-agent")
	if !hasInput || !hasSig || !hasAgent {
		return fail(ReasonMissingSignatureHeaders, "request is missing one of Signature-Input, Signature, Signature-Agent")
	}

	inputDict, err := sfv.ParseDictionary(sigInputRaw)
	if err != nil {
		return fail(ReasonInvalidStructuredField, "signature-input: %v", err)
	}
	if inputDict.Len() == 0 {
		return fail(ReasonMissingSignatureInput, "signature-input is empty")
	}

	label := e.Options.LabelHint
	if label == "" {
		label = inputDict.Labels()[0]
	}
	member, ok := inputDict.Get(label)
	if !ok {
		return fail(ReasonMissingSignatureInput, "label %q not present in signature-input", label)
	}
	if member.Kind != sfv.KindInnerList {
		return fail(ReasonInvalidStructuredField, "signature-input member for label %q is not an inner list", label)
	}

	alg, hasAlg := member.ParamString("alg")
	if hasAlg && alg != "ed25519" {
		return fail(ReasonUnsupportedAlgorithm, "unsupported algorithm %q", alg)
	}
	keyid, _ := member.ParamString("keyid")
	nonceParam, hasNonce := member.ParamString("nonce")
	created, hasCreated := member.ParamInt("created")
	expires, hasExpires := member.ParamInt("expires")

	if !hasCreated {
		return fail(ReasonMissingCreated, "signature-input for label %q has no created parameter", label)
	}

	now := e.now().Unix()
	skew := now - created
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > e.Options.MaxSkew {
		return fail(ReasonClockSkew, "created=%d is outside the %s freshness window", created, e.Options.MaxSkew)
	}
	if hasExpires && now > expires {
		return fail(ReasonExpired, "signature expired at %d", expires)
	}

	sigDict, err := sfv.ParseDictionary(sigRaw)
	if err != nil {
		return fail(ReasonInvalidStructuredField, "signature: %v", err)
	}
	sigMember, ok := sigDict.Get(label)
	if !ok || sigMember.Kind != sfv.KindBytes {
		return fail(ReasonMissingSignature, "label %q not present in signature", label)
	}

	agentValue, agentReason, err := resolveSignatureAgentValue(agentRaw, label)
	if err != nil {
		return fail(agentReason, "%v", err)
	}

	jwksURL := req.JWKSURLOverride
	var doc *jwksdir.Document
	if jwksURL != "" {
		doc, err = e.JWKS.Get(ctx, jwksURL)
	} else {
		jwksURL, doc, err = e.JWKS.Resolve(ctx, agentValue)
	}
	if err != nil {
		return jwksFailure(err)
	}

	if hasNonce {
		fresh, err := e.Nonces.Admit(ctx, keyid, nonceParam, e.Options.NonceTTL)
		if err != nil {
			return fail(ReasonInternalError, "nonce admission: %v", err)
		}
		if !fresh {
			metrics.NonceAdmissions.WithLabelValues("replay").Inc()
			return fail(ReasonNonceReplay, "nonce already admitted for keyid %q", keyid)
		}
		metrics.NonceAdmissions.WithLabelValues("fresh").Inc()
	}

	key, ok := doc.FindKey(keyid)
	if !ok {
		return fail(ReasonUnknownKid, "no Ed25519 key with kid %q", keyid)
	}
	pub, err := decodePublicKey(key.X)
	if err != nil {
		return fail(ReasonInvalidJWKS, "decoding public key for kid %q: %v", keyid, err)
	}

	components := sigbase.ComponentsFromInnerList(member.List)
	base, err := sigbase.Build(&sigbase.Request{Method: req.Method, TargetURI: req.URL, Headers: req.Headers}, label, components, sigbase.ParamsFromInput(member))
	if err != nil {
		return sigbaseFailure(err)
	}

	signature := sigMember.Bytes
	if !ed25519.Verify(pub, []byte(base), signature) {
		return fail(ReasonSignatureMismatch, "ed25519 verification failed for kid %q", keyid)
	}

	v := &Verdict{
		Verified: true,
		Agent:    &AgentInfo{JWKSURL: jwksURL, Kid: keyid, ClientName: doc.ClientName},
		Created:  created,
		WeakFreshness: !hasNonce,
	}
	if hasExpires {
		v.Expires = expires
	}
	return v
}

func decodePublicKey(x string) (ed25519.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(x)
		if err != nil {
			return nil, fmt.Errorf("invalid base64url x value: %w", err)
		}
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("unexpected public key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// resolveSignatureAgentValue extracts the identity value relevant to
// label from the raw Signature-Agent field, accepting both the legacy
// bare/quoted form and the dictionary form.
func resolveSignatureAgentValue(raw, label string) (string, Reason, error) {
	if dict, err := sfv.ParseDictionary(raw); err == nil && dict.Len() > 0 {
		member, ok := dict.Get(label)
		if !ok {
			return "", ReasonMissingSignatureAgent, fmt.Errorf("signature-agent dictionary has no member for label %q", label)
		}
		if member.Kind != sfv.KindString && member.Kind != sfv.KindToken {
			return "", ReasonInvalidSignatureAgent, fmt.Errorf("signature-agent member for label %q is not a string", label)
		}
		return member.Str, "", nil
	}
	value := jwksdir.StripWrapping(raw)
	if value == "" {
		return "", ReasonMissingSignatureAgent, fmt.Errorf("signature-agent is empty")
	}
	return value, "", nil
}

func jwksFailure(err error) *Verdict {
	switch {
	case errors.Is(err, jwksdir.ErrUntrustedDirectory):
		return fail(ReasonUntrustedDirectory, "%v", err)
	case errors.Is(err, jwksdir.ErrDiscoveryFailed):
		return fail(ReasonJWKSDiscoveryFailed, "%v", err)
	case errors.Is(err, jwksdir.ErrInvalidJWKS):
		return fail(ReasonInvalidJWKS, "%v", err)
	case errors.Is(err, jwksdir.ErrFetchFailed):
		return fail(ReasonJWKSFetchFailed, "%v", err)
	default:
		return fail(ReasonJWKSFetchFailed, "%v", err)
	}
}

func sigbaseFailure(err error) *Verdict {
	var missing *sigbase.MissingHeaderError
	if errors.As(err, &missing) {
		return fail(ReasonMissingCoveredHeader, "missing covered header: %s", missing.Header)
	}
	var sensitive *sigbase.SensitiveHeaderError
	if errors.As(err, &sensitive) {
		return fail(ReasonSensitiveHeaderInSignature, "sensitive header in signature: %s", sensitive.Header)
	}
	var invalid *sfv.ErrInvalidStructuredField
	if errors.As(err, &invalid) {
		return fail(ReasonInvalidStructuredField, "%v", err)
	}
	return fail(ReasonInternalError, "%v", err)
}
