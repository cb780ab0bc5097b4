// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"sync"
	"time"

	"github.com/tomtom215/episodic/internal/dispatch"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// DefaultStopDelay is the grace period before the executor stops once the
// last session listener has unregistered.
const DefaultStopDelay = 2 * time.Second

// SessionListener is interested in the outcome of draining the queue.
// Callbacks are delivered on the main dispatcher.
type SessionListener interface {
	OnQueueEmpty()
	OnQueueFailed()
}

// SyncObserver is told when draining starts and stops. It fires once per
// transition, not once per job.
type SyncObserver interface {
	SyncStarted()
	SyncStopped()
}

// DrainScheduler arranges for the queue to be drained again later,
// possibly after a restart. Handler calls it when it stops with jobs
// still pending.
type DrainScheduler interface {
	ScheduleDrain()
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	StopDelay time.Duration
	Executor  ExecutorConfig
}

// Handler runs the executor only while someone is listening. The first
// registered listener starts it; when the last one unregisters the
// executor is stopped after StopDelay unless a listener returns first.
type Handler struct {
	manager   *Manager
	executor  *Executor
	main      dispatch.Dispatcher
	stopDelay time.Duration
	observer  SyncObserver

	listeners listenerSet[SessionListener]

	mu        sync.Mutex
	stopTimer dispatch.Timer
	executing bool
	drains    DrainScheduler
}

// NewHandler creates a handler and its executor. observer may be nil.
func NewHandler(manager *Manager, main, worker dispatch.Dispatcher, cfg HandlerConfig, observer SyncObserver) *Handler {
	if cfg.StopDelay <= 0 {
		cfg.StopDelay = DefaultStopDelay
	}
	h := &Handler{
		manager:   manager,
		main:      main,
		stopDelay: cfg.StopDelay,
		observer:  observer,
	}
	h.executor = NewExecutor(manager, main, worker, cfg.Executor, h)
	return h
}

// SetDrainScheduler sets the scheduler used when stopping with pending
// jobs. It exists because the scheduler itself registers listeners here.
func (h *Handler) SetDrainScheduler(d DrainScheduler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drains = d
}

// Manager returns the queue this handler drains.
func (h *Handler) Manager() *Manager {
	return h.manager
}

// Executor returns the underlying executor.
func (h *Handler) Executor() *Executor {
	return h.executor
}

// HasJobs reports whether any job is pending.
func (h *Handler) HasJobs() bool {
	return h.manager.HasJobs()
}

// ListenerCount returns the number of registered session listeners.
func (h *Handler) ListenerCount() int {
	return h.listeners.len()
}

// RegisterListener adds l, cancels any pending stop and starts the executor.
func (h *Handler) RegisterListener(l SessionListener) {
	h.listeners.add(l)

	h.mu.Lock()
	if h.stopTimer != nil {
		h.stopTimer.Stop()
		h.stopTimer = nil
	}
	h.mu.Unlock()

	h.executor.Start()
}

// UnregisterListener removes l. When no listeners remain the executor is
// stopped after the grace delay.
func (h *Handler) UnregisterListener(l SessionListener) {
	if h.listeners.remove(l) > 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopTimer == nil {
		h.stopTimer = h.main.PostDelayed(h.stop, h.stopDelay)
	}
}

func (h *Handler) stop() {
	h.mu.Lock()
	h.stopTimer = nil
	drains := h.drains
	h.mu.Unlock()

	if h.listeners.len() > 0 {
		return
	}

	h.executor.Stop()
	h.setExecuting(false)

	if h.manager.HasJobs() && drains != nil {
		logging.Info().Int("pending", h.manager.Len()).Msg("Job handler stopped with pending jobs, scheduling drain")
		drains.ScheduleDrain()
	}
}

// OnStartJob implements ExecutorListener.
func (h *Handler) OnStartJob(*Entry) {
	h.setExecuting(true)
}

// OnQueueEmpty implements ExecutorListener.
func (h *Handler) OnQueueEmpty() {
	h.setExecuting(false)
	h.listeners.each("queue_empty", func(l SessionListener) { l.OnQueueEmpty() })
}

// OnQueueFailed implements ExecutorListener.
func (h *Handler) OnQueueFailed() {
	h.setExecuting(false)
	h.listeners.each("queue_failed", func(l SessionListener) { l.OnQueueFailed() })
}

func (h *Handler) setExecuting(executing bool) {
	h.mu.Lock()
	if h.executing == executing {
		h.mu.Unlock()
		return
	}
	h.executing = executing
	h.mu.Unlock()

	metrics.SetBool(metrics.SyncActive, executing)
	if h.observer == nil {
		return
	}
	if executing {
		h.observer.SyncStarted()
	} else {
		h.observer.SyncStopped()
	}
}

var (
	_ ExecutorListener = (*Handler)(nil)
	_ JobListener      = (*Executor)(nil)
)
