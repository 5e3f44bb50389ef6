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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verifications counts pipeline outcomes by reason; a successful
// verification is recorded with reason="".
var Verifications = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "verify",
	Name:      "total",
	Help:      "Total verification attempts by outcome reason (empty reason means success).",
}, []string{"reason"})

// VerifyDuration tracks end-to-end pipeline latency.
var VerifyDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "verify",
	Name:      "duration_seconds",
	Help:      "Time spent in the verification pipeline per request.",
	Buckets:   prometheus.DefBuckets,
})

// WeakFreshnessVerifications counts successful verifications that carried
// no nonce parameter, i.e. replay protection relied on created/expires alone.
var WeakFreshnessVerifications = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "verify",
	Name:      "weak_freshness_total",
	Help:      "Successful verifications that had no nonce parameter.",
})

// JWKSCacheHits/Misses count Cache.Get outcomes.
var (
	JWKSCacheHits = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jwksdir",
		Name:      "cache_hits_total",
		Help:      "JWKS cache lookups served from an unexpired entry.",
	})
	JWKSCacheMisses = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jwksdir",
		Name:      "cache_misses_total",
		Help:      "JWKS cache lookups that required a network fetch.",
	})
)

// JWKSFetchDuration tracks the latency of outbound JWKS document fetches.
var JWKSFetchDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "jwksdir",
	Name:      "fetch_duration_seconds",
	Help:      "Latency of outbound JWKS document fetches.",
	Buckets:   prometheus.DefBuckets,
})

// JWKSFetchFailures counts fetch attempts that failed, by cause.
var JWKSFetchFailures = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jwksdir",
	Name:      "fetch_failures_total",
	Help:      "JWKS fetch failures by cause.",
}, []string{"cause"})

// NonceAdmissions counts nonce store outcomes.
var NonceAdmissions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "nonce",
	Name:      "admissions_total",
	Help:      "Nonce admission attempts by outcome (fresh or replay).",
}, []string{"outcome"})

// TelemetryQueueDepth reports the current depth of the fire-and-forget
// telemetry queue.
var TelemetryQueueDepth = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "telemetry",
	Name:      "queue_depth",
	Help:      "Current number of records buffered in the telemetry queue.",
})

// TelemetryDropped counts records dropped because the telemetry queue was
// full.
var TelemetryDropped = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "telemetry",
	Name:      "dropped_total",
	Help:      "Telemetry records dropped due to a full queue.",
})

// ObserveVerification records a verdict reason in both the per-reason
// counter and, for successful-but-nonce-less verdicts, the weak-freshness
// counter. reason is empty for a successful verification.
func ObserveVerification(reason string, weakFreshness bool) {
	Verifications.WithLabelValues(reason).Inc()
	if weakFreshness {
		WeakFreshnessVerifications.Inc()
	}
}
