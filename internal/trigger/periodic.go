// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package trigger

import (
	"context"
	"time"

	"github.com/tomtom215/episodic/internal/logging"
)

// Periodic calls fn every interval, starting immediately.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewPeriodic creates a periodic service.
func NewPeriodic(name string, interval time.Duration, fn func(ctx context.Context) error) *Periodic {
	return &Periodic{name: name, interval: interval, fn: fn}
}

// Serve implements suture.Service.
func (p *Periodic) Serve(ctx context.Context) error {
	p.run(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Periodic) run(ctx context.Context) {
	if err := p.fn(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Str("service", p.name).Msg("Periodic run failed")
	}
}

// String implements fmt.Stringer for suture logs.
func (p *Periodic) String() string {
	return p.name
}
