// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package dispatch provides serialized execution contexts.
//
// A Loop runs posted callbacks one at a time, in post order, on a single
// goroutine. The job queue uses three of them: one for queue mutations,
// one for running jobs and one "main" loop on which listener callbacks
// and timers are delivered. Manual is a deterministic Dispatcher with a
// virtual clock for tests.
package dispatch

import (
	"time"
)

// Dispatcher accepts callbacks for serialized execution.
type Dispatcher interface {
	// Post schedules fn to run after everything already posted.
	Post(fn func())

	// PostDelayed schedules fn to run no earlier than delay from now.
	PostDelayed(fn func(), delay time.Duration) Timer
}

// Timer is a handle to a delayed callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// call stopped it; false means it already ran or was already stopped.
	Stop() bool
}
