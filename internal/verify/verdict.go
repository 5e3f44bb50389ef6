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

import "fmt"

// AgentInfo describes the signer identified by a successful verification.
type AgentInfo struct {
	JWKSURL    string `json:"jwks_url"`
	Kid        string `json:"kid"`
	ClientName string `json:"client_name,omitempty"`
}

// Verdict is the closed sum the engine emits for every request: either
// Verified with Agent/Created/Expires populated, or a failure with Reason
// and a human-readable Error. No untagged JSON crosses a component
// boundary; every sidecar surface maps this struct directly.
type Verdict struct {
	Verified bool       `json:"verified"`
	Agent    *AgentInfo `json:"agent,omitempty"`
	Created  int64      `json:"created,omitempty"`
	Expires  int64      `json:"expires,omitempty"`
	Reason   Reason     `json:"reason,omitempty"`
	Error    string     `json:"error,omitempty"`

	// WeakFreshness is set when the verdict succeeded without a nonce
	// parameter: legal, but telemetry-worthy. It is not part of the
	// failure taxonomy and never affects Verified.
	WeakFreshness bool `json:"-"`
}

func fail(reason Reason, format string, args ...interface{}) *Verdict {
	return &Verdict{Verified: false, Reason: reason, Error: fmt.Sprintf(format, args...)}
}
