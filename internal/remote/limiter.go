// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package remote

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/episodic/internal/metrics"
)

// Limiter hands out permits for a quota-limited API. One Limiter is shared
// by every caller of that API so the quota holds process-wide.
type Limiter struct {
	name    string
	limiter *rate.Limiter
}

// NewLimiter allows perSecond requests per second with the given burst.
// A non-positive rate disables limiting.
func NewLimiter(name string, perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{name: name, limiter: rate.NewLimiter(limit, burst)}
}

// Acquire blocks until a permit is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter %s: %w", l.name, err)
	}
	metrics.RateLimiterWait.WithLabelValues(l.name).Observe(time.Since(start).Seconds())
	return nil
}

// Name returns the limiter name used in metrics.
func (l *Limiter) Name() string {
	return l.name
}
