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

// Command obauth-verifierd is the verifier daemon: it exposes the
// verifier RPC, the reverse-proxy sub-request endpoint (/authorize),
// cache administration, a Prometheus /metrics endpoint, and a /healthz
// liveness probe.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sage-x-project/openbotauth/internal/config"
	"github.com/sage-x-project/openbotauth/internal/jwksdir"
	"github.com/sage-x-project/openbotauth/internal/logger"
	"github.com/sage-x-project/openbotauth/internal/metrics"
	"github.com/sage-x-project/openbotauth/internal/nonce"
	"github.com/sage-x-project/openbotauth/internal/sidecar"
	"github.com/sage-x-project/openbotauth/internal/telemetry"
	"github.com/sage-x-project/openbotauth/internal/verify"
	"github.com/sage-x-project/openbotauth/pkg/version"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "obauth-verifierd: load config: %v\n", err)
		os.Exit(1)
	}

	log := buildLogger(cfg)
	log.Info("starting obauth-verifierd",
		logger.String("version", version.Short()),
		logger.String("environment", cfg.Environment),
		logger.String("mode", string(cfg.Mode)),
	)

	nonceStore, err := buildNonceStore(cfg)
	if err != nil {
		log.Fatal("failed to construct nonce store", logger.Error(err))
		os.Exit(1)
	}
	defer nonceStore.Close()

	jwksCache := jwksdir.NewCache(jwksdir.Config{
		DefaultTTL:         cfg.JWKSTTL(),
		MaxBytes:           int64(cfg.JWKSMaxBytes),
		Timeout:            cfg.JWKSTimeout(),
		TrustedDirectories: cfg.TrustedDirectories,
		DiscoveryPaths:     cfg.DiscoveryPaths,
		AllowInsecureHTTP:  cfg.Environment != "production",
	})

	engine := &verify.Engine{
		JWKS:   jwksCache,
		Nonces: nonceStore,
		Options: verify.Options{
			MaxSkew:  cfg.MaxSkew(),
			NonceTTL: cfg.NonceTTL(),
		},
	}

	var tel *telemetry.Logger
	if cfg.TelemetryEnabled {
		tel = telemetry.New(telemetry.NewMemoryCounters(), telemetry.NewMemoryDurableLog(), 1024)
		defer tel.Close()
	}

	srv := &server{cfg: cfg, engine: engine, jwks: jwksCache, telemetry: tel, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", srv.handleVerify)
	mux.HandleFunc("POST /authorize", srv.handleAuthorize)
	mux.HandleFunc("POST /cache/jwks/clear", srv.handleCacheClear)
	mux.HandleFunc("POST /cache/jwks/invalidate", srv.handleCacheInvalidate)
	mux.HandleFunc("POST /cache/nonces/clear", srv.handleNonceClear)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", srv.handleHealthz)

	addr := ":8443"
	if a := os.Getenv("OBAUTH_LISTEN_ADDR"); a != "" {
		addr = a
	}
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("listening", logger.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen failed", logger.Error(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	_ = httpSrv.Shutdown(ctx)
}

func buildLogger(cfg *config.Config) *logger.StructuredLogger {
	return logger.NewLogger(os.Stdout, logger.ParseLevel(cfg.Logging.Level))
}

func buildNonceStore(cfg *config.Config) (nonce.Store, error) {
	if cfg.Storage.Backend != "postgres" {
		return nonce.NewMemoryStore(cfg.NonceTTL()), nil
	}
	return nonce.NewPostgresStore(context.Background(), nonce.Config{
		Host:     cfg.Storage.Host,
		Port:     cfg.Storage.Port,
		User:     cfg.Storage.User,
		Password: cfg.Storage.Password,
		Database: cfg.Storage.Database,
		SSLMode:  cfg.Storage.SSLMode,
	})
}

type server struct {
	cfg       *config.Config
	engine    *verify.Engine
	jwks      *jwksdir.Cache
	telemetry *telemetry.Logger
	log       logger.Logger
}

// rpcRequest is the wire shape of the verifier RPC request body: a flat
// string-valued header map, since the sidecar has already resolved any
// multi-value headers to the single forwarded value it needs.
type rpcRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
	JWKSURL string            `json:"jwks_url,omitempty"`
}

func (r rpcRequest) toEngineRequest() *verify.Request {
	headers := make(map[string][]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = []string{v}
	}
	return &verify.Request{
		Method:          r.Method,
		URL:             r.URL,
		Headers:         headers,
		Body:            []byte(r.Body),
		JWKSURLOverride: r.JWKSURL,
	}
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVerdict(w, &verify.Verdict{Verified: false, Reason: verify.ReasonInternalError, Error: "malformed request body"})
		return
	}
	verdict := s.engine.Verify(r.Context(), req.toEngineRequest())
	origin := req.Headers["host"]
	if origin == "" {
		origin = r.Host
	}
	s.recordTelemetry(r, origin, verdict)
	writeVerdict(w, verdict)
}

// handleAuthorize serves the reverse-proxy sub-request protocol: the
// same verification, with inputs drawn from X-Original-* headers instead
// of a JSON body, and the sidecar response headers mirrored onto the
// response for the proxy to copy back to the client.
func (s *server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = v
	}
	req := &verify.Request{
		Method:  r.Header.Get("X-Original-Method"),
		URL:     originalURL(r),
		Headers: headers,
	}
	verdict := s.engine.Verify(r.Context(), req)
	sidecar.ApplyVerdict(w.Header(), verdict)
	origin := r.Header.Get("X-Original-Host")
	if origin == "" {
		origin = r.Host
	}
	s.recordTelemetry(r, origin, verdict)
	writeVerdict(w, verdict)
}

func originalURL(r *http.Request) string {
	scheme := "https"
	host := r.Header.Get("X-Original-Host")
	uri := r.Header.Get("X-Original-Uri")
	return scheme + "://" + host + uri
}

// recordTelemetry fires a non-blocking telemetry record for the attempt.
// origin is whatever Host value the caller resolved for this request
// (the sidecar's literal header value for /authorize, or the signed
// "host" component from the RPC body for the direct verifier RPC).
func (s *server) recordTelemetry(r *http.Request, origin string, v *verify.Verdict) {
	kid := ""
	jwksURL := ""
	if v.Agent != nil {
		kid = v.Agent.Kid
		jwksURL = v.Agent.JWKSURL
	}

	if v.Verified {
		s.log.Debug("request verified", logger.Keyid(kid), logger.JWKSURL(jwksURL), logger.String("origin", origin))
	} else {
		s.log.Info("request not verified", logger.Reason(string(v.Reason)), logger.String("origin", origin))
	}

	if s.telemetry == nil {
		return
	}
	s.telemetry.Record(r.Context(), telemetry.Attempt{
		Origin: origin, Signed: true, Verified: v.Verified, Reason: v.Reason, Kid: kid,
	})
}

func writeVerdict(w http.ResponseWriter, v *verify.Verdict) {
	w.Header().Set("Content-Type", "application/json")
	if v.Verified {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.jwks.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JWKSURL string `json:"jwks_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.JWKSURL == "" {
		http.Error(w, "jwks_url is required", http.StatusBadRequest)
		return
	}
	s.jwks.Invalidate(body.JWKSURL)
	w.WriteHeader(http.StatusNoContent)
}

// handleNonceClear is operational only: it acknowledges the request but
// cannot reach into a Store-agnostic backend generically, since Store
// exposes only Admit/Close. Deployments needing this switch should point
// it at the backend's own admin surface (e.g. TRUNCATE on the Postgres
// nonces table); this endpoint exists for the memory backend, which has
// nothing else addressing it.
func (s *server) handleNonceClear(w http.ResponseWriter, r *http.Request) {
	if clearer, ok := s.engine.Nonces.(interface{ Clear() }); ok {
		clearer.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
