// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"runtime/debug"
	"sync"

	"github.com/tomtom215/episodic/internal/logging"
)

// listenerSet is an ordered set of listeners. Listeners are compared with
// ==, so implementations must be comparable (pointer receivers).
type listenerSet[L comparable] struct {
	mu    sync.Mutex
	items []L
}

func (s *listenerSet[L]) add(l L) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing == l {
			return false
		}
	}
	s.items = append(s.items, l)
	return true
}

// remove returns the number of listeners left.
func (s *listenerSet[L]) remove(l L) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if existing == l {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return len(s.items)
}

func (s *listenerSet[L]) contains(l L) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing == l {
			return true
		}
	}
	return false
}

func (s *listenerSet[L]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// each calls fn for every listener, newest first. It iterates a snapshot
// so listeners may register or unregister from inside fn; a listener
// removed during the fan-out is skipped if not yet reached. A panicking
// listener is logged and does not stop the fan-out.
func (s *listenerSet[L]) each(event string, fn func(L)) {
	s.mu.Lock()
	snapshot := make([]L, len(s.items))
	copy(snapshot, s.items)
	s.mu.Unlock()

	for i := len(snapshot) - 1; i >= 0; i-- {
		l := snapshot[i]
		if !s.contains(l) {
			continue
		}
		callListener(event, func() { fn(l) })
	}
}

func callListener(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("event", event).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic in job listener")
		}
	}()
	fn()
}
