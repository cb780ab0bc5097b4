// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package actions coalesces concurrent requests for the same logical
// remote operation into a single execution.
//
// An Action computes a key from its parameters. While an invocation for a
// key is running, every further invocation with that key joins it and
// observes the same result. Once it finishes the key is forgotten, so the
// next invocation starts fresh work; results are never cached.
//
// Failures stop at the Manager: awaiters see a completion without a
// result, never an error. Retrying is left to the job queue.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrActionFailed marks an expected, classified failure such as a bad
// status code or an I/O error during a remote call.
var ErrActionFailed = errors.New("action failed")

// Action is a keyed unit of remote work.
type Action[P, R any] interface {
	// Key identifies the logical operation for params. Invocations with
	// equal keys are coalesced.
	Key(params P) string

	// Execute performs the work. It should return an error wrapping
	// ErrActionFailed for expected failures.
	Execute(ctx context.Context, params P) (R, error)
}

// FailedError is an expected action failure.
type FailedError struct {
	Err error
}

// Failed wraps err as an expected action failure.
func Failed(err error) error {
	if err == nil {
		err = ErrActionFailed
	}
	return &FailedError{Err: err}
}

func (e *FailedError) Error() string {
	if errors.Is(e.Err, ErrActionFailed) {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %v", ErrActionFailed, e.Err)
}

func (e *FailedError) Unwrap() []error {
	return []error{ErrActionFailed, e.Err}
}

// Key builds an action key of the form "Name&k1=v1&k2=v2" from a name and
// alternating key/value pairs.
func Key(name string, kv ...interface{}) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i < len(kv); i += 2 {
		b.WriteByte('&')
		fmt.Fprint(&b, kv[i])
		b.WriteByte('=')
		if i+1 < len(kv) {
			fmt.Fprint(&b, kv[i+1])
		}
	}
	return b.String()
}

// actionName returns the name part of a key built by Key.
func actionName(key string) string {
	name, _, _ := strings.Cut(key, "&")
	return name
}
