// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package jobs implements the durable job queue.
//
// A Job is a pure-data command (for example "mark these episodes
// watched") that is serialized into the durable store when enqueued and
// replayed after a restart. What a job does is registered separately, per
// job type, in a Registry: the perform function closes over the service
// clients and local store it needs, so a job decoded from disk is bound to
// its collaborators when it is dequeued rather than carrying them.
//
// Manager owns the FIFO queue and its persisted mirror. Executor runs the
// queue one job at a time and pauses the whole queue for a fixed backoff
// after any failure. Handler starts the executor while at least one
// session listener is interested and stops it shortly after the last one
// leaves.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownJobType is returned for a job type that was never registered.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrJobPanicked wraps a panic raised by a job's perform function.
	ErrJobPanicked = errors.New("job panicked")
)

// Job is a serializable unit of mutating work. Implementations are plain
// structs encoded as JSON; JobType must return a constant for the type.
type Job interface {
	// JobType names the registered type, e.g. "episode_flag".
	JobType() string

	// JobKey identifies the logical operation. It is not unique: the same
	// key may be enqueued more than once.
	JobKey() string
}

// Prioritized is implemented by jobs that carry a priority. The priority
// is persisted and reported but does not change execution order.
type Prioritized interface {
	JobPriority() int
}

// PerformFunc executes a job. A nil return is success; any error (or a
// panic) is a failure that pauses the queue and leaves the job at its head.
type PerformFunc func(ctx context.Context, job Job) error

// Entry is a job held by the Manager.
type Entry struct {
	// ID is the durable store record ID, or zero if persisting failed.
	ID         uint64
	Job        Job
	Type       string
	Key        string
	Priority   int
	EnqueuedAt time.Time

	perform PerformFunc
}

// Perform runs the perform function bound by Manager.NextJob.
func (e *Entry) Perform(ctx context.Context) error {
	if e.perform == nil {
		return ErrUnknownJobType
	}
	return e.perform(ctx, e.Job)
}

// EntryInfo is a read-only view of an Entry for reporting.
type EntryInfo struct {
	ID         uint64    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (e *Entry) info() EntryInfo {
	return EntryInfo{ID: e.ID, Type: e.Type, Key: e.Key, Priority: e.Priority, EnqueuedAt: e.EnqueuedAt}
}
