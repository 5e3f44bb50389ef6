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

// Command obauth-sidecar is the reverse-proxy front-end: it classifies
// each incoming request, verifies any signature material in-process
// against a local verify.Engine, annotates the response with the
// X-OBAuth-* header ABI, and forwards the request to the configured
// origin.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
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

	originFlag := flag.String("origin", os.Getenv("OBAUTH_ORIGIN"), "origin base URL requests are proxied to")
	listenFlag := flag.String("listen", envOr("OBAUTH_SIDECAR_LISTEN_ADDR", ":8080"), "address the sidecar listens on")
	flag.Parse()

	if *originFlag == "" {
		fmt.Fprintln(os.Stderr, "obauth-sidecar: -origin (or OBAUTH_ORIGIN) is required")
		os.Exit(1)
	}
	origin, err := url.Parse(*originFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obauth-sidecar: invalid origin: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "obauth-sidecar: load config: %v\n", err)
		os.Exit(1)
	}

	log := buildLogger(cfg)
	log.Info("starting obauth-sidecar",
		logger.String("version", version.Short()),
		logger.String("mode", string(cfg.Mode)),
		logger.String("origin", origin.String()),
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

	handler := sidecar.NewHandler(engine, tel, cfg.Mode, cfg.ProtectedPaths, origin)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
	}

	httpSrv := &http.Server{Addr: *listenFlag, Handler: mux}

	go func() {
		log.Info("listening", logger.String("addr", *listenFlag))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
