// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package dispatch

import (
	"sync"
	"time"
)

// Manual is a Dispatcher driven by the caller. Nothing runs until
// RunPending or Advance is called, and delayed callbacks fire against a
// virtual clock. It may be posted to from any goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	at      time.Duration
	seq     uint64
	fn      func()
	stopped bool
	ran     bool
}

// NewManual returns a Manual dispatcher at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn at the current virtual time.
func (m *Manual) Post(fn func()) {
	m.schedule(fn, 0)
}

// PostDelayed queues fn at now+delay.
func (m *Manual) PostDelayed(fn func(), delay time.Duration) Timer {
	return m.schedule(fn, delay)
}

func (m *Manual) schedule(fn func(), delay time.Duration) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	task := &manualTask{at: m.now + delay, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return &manualTimer{m: m, task: task}
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of queued callbacks, due or not.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunPending runs every callback due at the current virtual time,
// including ones those callbacks post. It returns how many ran.
func (m *Manual) RunPending() int {
	m.mu.Lock()
	target := m.now
	m.mu.Unlock()
	return m.runUntil(target)
}

// Advance moves the clock forward by d, running due callbacks in time
// order. It returns how many ran.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()
	ran := m.runUntil(target)

	m.mu.Lock()
	if m.now < target {
		m.now = target
	}
	m.mu.Unlock()
	return ran
}

func (m *Manual) runUntil(target time.Duration) int {
	ran := 0
	for {
		m.mu.Lock()
		idx := -1
		for i, t := range m.tasks {
			if t.at > target {
				continue
			}
			if idx < 0 || t.at < m.tasks[idx].at || (t.at == m.tasks[idx].at && t.seq < m.tasks[idx].seq) {
				idx = i
			}
		}
		if idx < 0 {
			m.mu.Unlock()
			return ran
		}
		task := m.tasks[idx]
		m.tasks = append(m.tasks[:idx], m.tasks[idx+1:]...)
		if task.at > m.now {
			m.now = task.at
		}
		task.ran = true
		m.mu.Unlock()

		task.fn()
		ran++
	}
}

type manualTimer struct {
	m    *Manual
	task *manualTask
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.task.ran || t.task.stopped {
		return false
	}
	t.task.stopped = true
	for i, task := range t.m.tasks {
		if task == t.task {
			t.m.tasks = append(t.m.tasks[:i], t.m.tasks[i+1:]...)
			break
		}
	}
	return true
}
