// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package dispatch

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/episodic/internal/logging"
)

// Loop is a single-goroutine FIFO executor. The queue is unbounded so
// Post never blocks; callbacks posted after Close are dropped.
type Loop struct {
	name string

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewLoop starts a loop. name appears in log output.
func NewLoop(name string) *Loop {
	l := &Loop{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Name returns the loop name.
func (l *Loop) Name() string {
	return l.name
}

// Post schedules fn. It is a no-op after Close.
func (l *Loop) Post(fn func()) {
	l.post(fn)
}

func (l *Loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		logging.Debug().Str("loop", l.name).Msg("Dropping callback posted after close")
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed schedules fn after delay.
func (l *Loop) PostDelayed(fn func(), delay time.Duration) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(delay, func() {
		l.post(func() {
			if t.state.CompareAndSwap(timerPending, timerFired) {
				fn()
			}
		})
	})
	return t
}

// Flush blocks until every callback posted before the call has run.
// It must not be called from the loop's own goroutine.
func (l *Loop) Flush() {
	barrier := make(chan struct{})
	if !l.post(func() { close(barrier) }) {
		return
	}
	<-barrier
}

// Close stops accepting callbacks, runs the ones already queued and waits
// for the goroutine to exit. Pending delayed callbacks are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("loop", l.name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic in loop callback")
		}
	}()
	fn()
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

type loopTimer struct {
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) Stop() bool {
	if !t.state.CompareAndSwap(timerPending, timerStopped) {
		return false
	}
	t.timer.Stop()
	return true
}
