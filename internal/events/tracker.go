// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/episodic/internal/logging"
)

// Status is the latest known sync state.
type Status struct {
	Syncing         bool      `json:"syncing"`
	LastStarted     time.Time `json:"last_started,omitempty"`
	LastStopped     time.Time `json:"last_stopped,omitempty"`
	LastQueueEmpty  time.Time `json:"last_queue_empty,omitempty"`
	LastQueueFailed time.Time `json:"last_queue_failed,omitempty"`
	Failures        int       `json:"failures_since_empty"`
}

// StatusTracker follows the bus and keeps the latest Status.
type StatusTracker struct {
	bus   *Bus
	ready chan struct{}
	once  sync.Once

	mu      sync.RWMutex
	status  Status
	lastSeq uint64
}

// NewStatusTracker creates a tracker for bus. Call Serve to start it.
func NewStatusTracker(bus *Bus) *StatusTracker {
	return &StatusTracker{bus: bus, ready: make(chan struct{})}
}

// Status returns the latest state.
func (t *StatusTracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Ready is closed once the tracker has subscribed.
func (t *StatusTracker) Ready() <-chan struct{} {
	return t.ready
}

// Serve consumes events until ctx is done.
func (t *StatusTracker) Serve(ctx context.Context) error {
	syncCh, err := t.bus.Subscribe(ctx, TopicSyncStatus)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicSyncStatus, err)
	}
	emptyCh, err := t.bus.Subscribe(ctx, TopicQueueEmpty)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicQueueEmpty, err)
	}
	failedCh, err := t.bus.Subscribe(ctx, TopicQueueFailed)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicQueueFailed, err)
	}
	t.once.Do(func() { close(t.ready) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-syncCh:
			if !ok {
				return nil
			}
			t.handleSync(msg)
		case msg, ok := <-emptyCh:
			if !ok {
				return nil
			}
			t.handleQueue(msg, false)
		case msg, ok := <-failedCh:
			if !ok {
				return nil
			}
			t.handleQueue(msg, true)
		}
	}
}

func (t *StatusTracker) handleSync(msg *message.Message) {
	defer msg.Ack()

	var ev SyncStatus
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logging.Warn().Str("message_uuid", msg.UUID).Err(err).Msg("Failed to parse sync status")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ev.Seq <= t.lastSeq {
		return
	}
	t.lastSeq = ev.Seq
	switch ev.State {
	case SyncStarted:
		t.status.Syncing = true
		t.status.LastStarted = ev.At
	case SyncStopped:
		t.status.Syncing = false
		t.status.LastStopped = ev.At
	}
}

func (t *StatusTracker) handleQueue(msg *message.Message, failed bool) {
	defer msg.Ack()

	var ev QueueSignal
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logging.Warn().Str("message_uuid", msg.UUID).Err(err).Msg("Failed to parse queue signal")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if failed {
		t.status.LastQueueFailed = ev.At
		t.status.Failures++
		return
	}
	t.status.LastQueueEmpty = ev.At
	t.status.Failures = 0
}

// String implements fmt.Stringer for suture logs.
func (t *StatusTracker) String() string {
	return "sync-status-tracker"
}
