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

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var cacheVerifierdAddr string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Administer a running obauth-verifierd's caches",
}

var cacheClearJWKSCmd = &cobra.Command{
	Use:   "clear-jwks",
	Short: "Drop every cached JWKS document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAdmin("/cache/jwks/clear", nil)
	},
}

var cacheInvalidateJWKSURL string

var cacheInvalidateJWKSCmd = &cobra.Command{
	Use:   "invalidate-jwks",
	Short: "Drop one cached JWKS document by URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheInvalidateJWKSURL == "" {
			return fmt.Errorf("--jwks-url is required")
		}
		body, err := json.Marshal(map[string]string{"jwks_url": cacheInvalidateJWKSURL})
		if err != nil {
			return err
		}
		return postAdmin("/cache/jwks/invalidate", body)
	},
}

var cacheClearNoncesCmd = &cobra.Command{
	Use:   "clear-nonces",
	Short: "Clear the nonce replay store (operational use only)",
	Long:  `Clearing admitted nonces disables replay protection for those entries until their signers resend with fresh nonces.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAdmin("/cache/nonces/clear", nil)
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.PersistentFlags().StringVar(&cacheVerifierdAddr, "addr", "http://127.0.0.1:8443", "obauth-verifierd base URL")

	cacheInvalidateJWKSCmd.Flags().StringVar(&cacheInvalidateJWKSURL, "jwks-url", "", "JWKS URL to invalidate")

	cacheCmd.AddCommand(cacheClearJWKSCmd, cacheInvalidateJWKSCmd, cacheClearNoncesCmd)
}

func postAdmin(path string, body []byte) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(cacheVerifierdAddr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: unexpected status %s: %s", path, resp.Status, string(msg))
	}
	fmt.Printf("%s: ok\n", path)
	return nil
}
