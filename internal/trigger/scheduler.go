// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package trigger runs background work outside of any user session:
// draining the job queue when the handler stopped with jobs pending, and
// the periodic full sync.
package trigger

import (
	"context"
	"time"

	"github.com/tomtom215/episodic/internal/jobs"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// Drain reasons.
const (
	ReasonStartup   = "startup"
	ReasonScheduled = "scheduled"
	ReasonInterval  = "interval"
	ReasonManual    = "manual"
)

// Drain results.
const (
	ResultEmpty     = "empty"
	ResultFailed    = "failed"
	ResultTimeout   = "timeout"
	ResultCancelled = "cancelled"
	ResultIdle      = "idle"
)

// Drainer is the part of jobs.Handler a drain needs.
type Drainer interface {
	RegisterListener(l jobs.SessionListener)
	UnregisterListener(l jobs.SessionListener)
	HasJobs() bool
}

// Signals receives drain outcomes. events.Bus satisfies it.
type Signals interface {
	QueueEmpty(source string)
	QueueFailed(source string)
}

// Config times background drains.
type Config struct {
	// Delay between a drain request and the drain.
	Delay time.Duration
	// Interval re-drains while jobs are pending. Zero disables it.
	Interval time.Duration
	// Timeout bounds one drain.
	Timeout time.Duration
}

// Scheduler implements jobs.DrainScheduler as a supervised service.
// Requests made while a drain is already pending are coalesced into it.
type Scheduler struct {
	handler  Drainer
	cfg      Config
	signals  Signals
	requests chan string
}

// NewScheduler creates a scheduler for handler. signals may be nil.
func NewScheduler(handler Drainer, cfg Config, signals Signals) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Scheduler{
		handler:  handler,
		cfg:      cfg,
		signals:  signals,
		requests: make(chan string, 1),
	}
}

// ScheduleDrain implements jobs.DrainScheduler.
func (s *Scheduler) ScheduleDrain() {
	s.Request(ReasonScheduled)
}

// Request asks for a drain. It reports false when a drain was already
// pending and this request was folded into it.
func (s *Scheduler) Request(reason string) bool {
	select {
	case s.requests <- reason:
		logging.Debug().Str("reason", reason).Msg("Queue drain requested")
		return true
	default:
		logging.Debug().Str("reason", reason).Msg("Queue drain already pending")
		return false
	}
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.handler.HasJobs() {
		s.Request(ReasonStartup)
	}

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-s.requests:
			if !sleep(ctx, s.cfg.Delay) {
				return ctx.Err()
			}
			s.Drain(ctx, reason)
		case <-tick:
			if s.handler.HasJobs() {
				s.Drain(ctx, ReasonInterval)
			}
		}
	}
}

// Drain runs the queue until it empties, fails, times out or ctx ends,
// and returns the result.
func (s *Scheduler) Drain(ctx context.Context, reason string) string {
	if !s.handler.HasJobs() {
		metrics.JobDrains.WithLabelValues(reason, ResultIdle).Inc()
		return ResultIdle
	}

	start := time.Now()
	session := &drainSession{done: make(chan string, 1)}
	s.handler.RegisterListener(session)
	defer s.handler.UnregisterListener(session)

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	var result string
	select {
	case result = <-session.done:
	case <-timer.C:
		result = ResultTimeout
	case <-ctx.Done():
		result = ResultCancelled
	}

	metrics.JobDrains.WithLabelValues(reason, result).Inc()
	event := logging.Info()
	if result != ResultEmpty {
		event = logging.Warn()
	}
	event.Str("reason", reason).
		Str("result", result).
		Dur("duration", time.Since(start)).
		Msg("Queue drain finished")

	if s.signals != nil {
		switch result {
		case ResultEmpty:
			s.signals.QueueEmpty("drain:" + reason)
		case ResultFailed:
			s.signals.QueueFailed("drain:" + reason)
		}
	}
	return result
}

// String implements fmt.Stringer for suture logs.
func (s *Scheduler) String() string {
	return "queue-drain-scheduler"
}

type drainSession struct {
	done chan string
}

func (d *drainSession) OnQueueEmpty() {
	d.finish(ResultEmpty)
}

func (d *drainSession) OnQueueFailed() {
	d.finish(ResultFailed)
}

func (d *drainSession) finish(result string) {
	select {
	case d.done <- result:
	default:
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
