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

// Package telemetry records every verified and rejected attempt without
// ever blocking the response path: a single-producer-per-request,
// single-consumer queue feeds fast per-day counters and a durable log
// sink. The queue drops the oldest entry under pressure rather than
// applying backpressure to the caller.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sage-x-project/openbotauth/internal/metrics"
	"github.com/sage-x-project/openbotauth/internal/verify"
)

// Attempt is one verification outcome worth recording.
type Attempt struct {
	At       time.Time
	Origin   string
	Signed   bool
	Verified bool
	Reason   verify.Reason
	Kid      string
}

// coarseReason buckets the closed failure taxonomy into the handful of
// coarse categories the durable log stores.
func (a Attempt) coarseReason() string {
	if a.Verified {
		return ""
	}
	switch a.Reason {
	case verify.ReasonMissingSignatureHeaders, verify.ReasonMissingSignatureInput,
		verify.ReasonMissingSignature, verify.ReasonMissingSignatureAgent,
		verify.ReasonInvalidStructuredField, verify.ReasonInvalidSignatureAgent:
		return "malformed"
	case verify.ReasonMissingCreated, verify.ReasonClockSkew, verify.ReasonExpired:
		return "freshness"
	case verify.ReasonNonceReplay:
		return "replay"
	case verify.ReasonUntrustedDirectory, verify.ReasonJWKSDiscoveryFailed,
		verify.ReasonJWKSFetchFailed, verify.ReasonInvalidJWKS, verify.ReasonUnknownKid:
		return "directory"
	case verify.ReasonMissingCoveredHeader, verify.ReasonSensitiveHeaderInSignature:
		return "coverage"
	case verify.ReasonSignatureMismatch:
		return "mismatch"
	default:
		return "internal"
	}
}

// Counters is the fast-store side of the logger: per-day signed/verified/
// failed counts, per-agent origin sets for site-diversity, and last-seen
// timestamps. The verifier depends only on this interface so a
// single-node deployment can back it with an in-memory store and a
// distributed one with Redis or similar, without either appearing in the
// hot path's import graph.
type Counters interface {
	IncrSigned(ctx context.Context, day string) error
	IncrOutcome(ctx context.Context, day string, verified bool) error
	AddOrigin(ctx context.Context, kid, origin string) error
	SetLastSeen(ctx context.Context, kid string, at time.Time) error
}

// DurableLog is the append-only sink: one row per verified or failed
// attempt.
type DurableLog interface {
	InsertAttempt(ctx context.Context, a Attempt, coarseReason string) error
}

// Logger owns the bounded queue and the background consumer draining it
// into Counters and DurableLog. The zero value is not usable; construct
// with New.
type Logger struct {
	counters Counters
	log      DurableLog
	queue    chan Attempt
	done     chan struct{}
	closed   sync.Once

	now func() time.Time
}

// New constructs a Logger with the given queue depth and starts its
// consumer goroutine. Close must be called to drain and stop it.
func New(counters Counters, log DurableLog, queueDepth int) *Logger {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	l := &Logger{
		counters: counters,
		log:      log,
		queue:    make(chan Attempt, queueDepth),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go l.run()
	return l
}

// Record enqueues an attempt without blocking the caller. If the queue is
// full, the oldest queued attempt is evicted to make room and
// metrics.TelemetryDropped is incremented: the telemetry lane never slows
// down or fails a request.
func (l *Logger) Record(ctx context.Context, a Attempt) {
	if a.At.IsZero() {
		a.At = l.now()
	}
	select {
	case l.queue <- a:
		metrics.TelemetryQueueDepth.Set(float64(len(l.queue)))
		return
	default:
	}
	select {
	case <-l.queue:
		metrics.TelemetryDropped.Inc()
	default:
	}
	select {
	case l.queue <- a:
	default:
		// Lost the race to a concurrent producer; drop the new attempt
		// rather than retry.
		metrics.TelemetryDropped.Inc()
	}
}

// Close stops the consumer after draining whatever is currently queued.
// Safe to call more than once.
func (l *Logger) Close() {
	l.closed.Do(func() {
		close(l.queue)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)
	ctx := context.Background()
	for a := range l.queue {
		metrics.TelemetryQueueDepth.Set(float64(len(l.queue)))
		l.consume(ctx, a)
	}
}

func (l *Logger) consume(ctx context.Context, a Attempt) {
	day := a.At.UTC().Format("2006-01-02")
	if l.counters != nil {
		_ = l.counters.IncrSigned(ctx, day)
		_ = l.counters.IncrOutcome(ctx, day, a.Verified)
		if a.Kid != "" {
			_ = l.counters.AddOrigin(ctx, a.Kid, a.Origin)
			_ = l.counters.SetLastSeen(ctx, a.Kid, a.At)
		}
	}
	if l.log != nil {
		_ = l.log.InsertAttempt(ctx, a, a.coarseReason())
	}
}
