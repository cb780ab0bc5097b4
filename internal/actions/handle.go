// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package actions

import (
	"context"
	"time"
)

// call is one execution shared by every invocation of its key.
type call struct {
	key     string
	started time.Time
	done    chan struct{}
	cancel  context.CancelFunc

	// lent is closed when a nested invocation joins the call before it
	// has a worker slot; the call then runs on the joiner's parent slot.
	lent chan struct{}

	// Guarded by Manager.mu.
	slotted bool
	lending bool

	// Written once before done is closed.
	value interface{}
	ok    bool
}

func newCall(key string, cancel context.CancelFunc) *call {
	return &call{key: key, started: time.Now(), done: make(chan struct{}), lent: make(chan struct{}), cancel: cancel}
}

// completedCall returns a call that has already finished without a result.
func completedCall(key string) *call {
	c := newCall(key, func() {})
	close(c.done)
	return c
}

// Handle is a caller's view of a possibly shared execution.
type Handle[R any] struct {
	c *call
}

// Key returns the action key.
func (h *Handle[R]) Key() string {
	return h.c.key
}

// Done is closed when the execution has finished.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.c.done
}

// Result returns the result if the execution has finished successfully.
// ok is false while running, after a failure, or if the shared execution
// produced a value of a different type.
func (h *Handle[R]) Result() (R, bool) {
	select {
	case <-h.c.done:
		return h.result()
	default:
		var zero R
		return zero, false
	}
}

// Await blocks until the execution finishes or ctx is done. Giving up on
// ctx does not cancel the execution.
func (h *Handle[R]) Await(ctx context.Context) (R, bool) {
	select {
	case <-h.c.done:
		return h.result()
	case <-ctx.Done():
		var zero R
		return zero, false
	}
}

// Cancel cancels the execution's context. The execution is shared, so
// this affects every caller awaiting the same key.
func (h *Handle[R]) Cancel() {
	h.c.cancel()
}

func (h *Handle[R]) result() (R, bool) {
	var zero R
	if !h.c.ok {
		return zero, false
	}
	if h.c.value == nil {
		return zero, true
	}
	v, ok := h.c.value.(R)
	if !ok {
		return zero, false
	}
	return v, true
}
