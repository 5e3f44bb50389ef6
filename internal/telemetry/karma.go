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

package telemetry

// RejectionThreshold is the rejection-rate cutoff above which Karma
// zeroes out an agent's score regardless of volume.
const RejectionThreshold = 0.5

// Karma computes an agent's offline reputation score from the counters a
// Counters backend has accumulated. It runs outside the hot path,
// typically over a nightly batch of day buckets, never inside
// Engine.Verify.
func Karma(requests, verified, uniqueOrigins int64) float64 {
	if requests == 0 {
		return 0
	}
	failed := requests - verified
	if float64(failed)/float64(requests) > RejectionThreshold {
		return 0
	}
	return float64(requests)/100 + float64(uniqueOrigins)*10
}
