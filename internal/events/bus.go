// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package events publishes sync lifecycle signals on an in-process
// watermill pub/sub so observers do not have to be wired into the job
// handler directly.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/episodic/internal/logging"
)

// Topics.
const (
	TopicSyncStatus  = "sync.status"
	TopicQueueEmpty  = "queue.empty"
	TopicQueueFailed = "queue.failed"
)

// SyncState is the state carried by a sync status event.
type SyncState string

const (
	SyncStarted SyncState = "started"
	SyncStopped SyncState = "stopped"
)

// SyncStatus is published on TopicSyncStatus.
// Seq orders events from one bus; delivery order is not guaranteed.
type SyncStatus struct {
	Seq   uint64    `json:"seq"`
	State SyncState `json:"state"`
	At    time.Time `json:"at"`
}

// QueueSignal is published on TopicQueueEmpty and TopicQueueFailed.
type QueueSignal struct {
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// Bus is the in-process event bus.
type Bus struct {
	pubsub *gochannel.GoChannel
	now    func() time.Time
	seq    atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewBus creates a bus. Messages are not persisted; a subscriber only sees
// events published after it subscribed.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logging.NewWatermillAdapter()),
		now: time.Now,
	}
}

// SyncStarted implements jobs.SyncObserver.
func (b *Bus) SyncStarted() {
	b.publishSync(SyncStarted)
}

// SyncStopped implements jobs.SyncObserver.
func (b *Bus) SyncStopped() {
	b.publishSync(SyncStopped)
}

func (b *Bus) publishSync(state SyncState) {
	if err := b.publish(TopicSyncStatus, SyncStatus{Seq: b.seq.Add(1), State: state, At: b.now().UTC()}); err != nil {
		logging.Warn().Err(err).Str("state", string(state)).Msg("Failed to publish sync status")
	}
}

// QueueEmpty publishes a queue-empty signal from source.
func (b *Bus) QueueEmpty(source string) {
	if err := b.publish(TopicQueueEmpty, QueueSignal{Source: source, At: b.now().UTC()}); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish queue empty signal")
	}
}

// QueueFailed publishes a queue-failed signal from source.
func (b *Bus) QueueFailed(source string) {
	if err := b.publish(TopicQueueFailed, QueueSignal{Source: source, At: b.now().UTC()}); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish queue failed signal")
	}
}

func (b *Bus) publish(topic string, payload interface{}) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("topic", topic)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the messages published on topic until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close closes the bus and every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.pubsub.Close()
}
