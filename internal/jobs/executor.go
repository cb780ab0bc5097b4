// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tomtom215/episodic/internal/dispatch"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// DefaultBackoffDelay is how long the queue pauses after a job fails.
const DefaultBackoffDelay = 30 * time.Second

// ExecutorListener receives executor events on the main dispatcher.
type ExecutorListener interface {
	OnStartJob(entry *Entry)
	OnQueueEmpty()
	OnQueueFailed()
}

// ExecutorState is a snapshot of the executor for reporting.
type ExecutorState struct {
	Started   bool       `json:"started"`
	Executing bool       `json:"executing"`
	Backoff   bool       `json:"backoff"`
	Current   *EntryInfo `json:"current,omitempty"`
}

// Executor runs the Manager's queue one job at a time on the worker
// dispatcher. A failed job stays at the head of the queue and the whole
// queue pauses for the backoff delay before the same job is retried.
type Executor struct {
	manager  *Manager
	main     dispatch.Dispatcher
	worker   dispatch.Dispatcher
	listener ExecutorListener
	backoff  time.Duration
	baseCtx  context.Context

	mu        sync.Mutex
	started   bool
	executing bool
	inBackoff bool
	current   *Entry
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	BackoffDelay time.Duration

	// BaseContext is the parent of every job's context. Defaults to
	// context.Background(); jobs are not cancelled when it is.
	BaseContext context.Context
}

// NewExecutor creates a stopped executor and subscribes it to the
// manager's job-added events.
func NewExecutor(manager *Manager, main, worker dispatch.Dispatcher, cfg ExecutorConfig, listener ExecutorListener) *Executor {
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = DefaultBackoffDelay
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	e := &Executor{
		manager:  manager,
		main:     main,
		worker:   worker,
		listener: listener,
		backoff:  cfg.BackoffDelay,
		baseCtx:  context.WithoutCancel(cfg.BaseContext),
	}
	manager.AddListener(e)
	return e
}

// OnJobAdded implements JobListener.
func (e *Executor) OnJobAdded(*Entry) {
	e.next()
}

// Start begins draining the queue. If the queue is already empty the
// listener is told so.
func (e *Executor) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	logging.Debug().Msg("Job executor started")
	if !e.next() && !e.manager.HasJobs() {
		e.main.Post(e.listener.OnQueueEmpty)
	}
}

// Stop prevents further jobs from being dequeued. A job already running
// finishes. A pending backoff keeps its deadline, so a Start inside the
// window waits for the remainder.
func (e *Executor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.started = false
	logging.Debug().Bool("backoff", e.inBackoff).Msg("Job executor stopped")
}

// IsStarted reports whether the executor is started.
func (e *Executor) IsStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// State returns a snapshot of the executor.
func (e *Executor) State() ExecutorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := ExecutorState{Started: e.started, Executing: e.executing, Backoff: e.inBackoff}
	if e.current != nil {
		info := e.current.info()
		st.Current = &info
	}
	return st
}

// next dispatches the head job if the executor may run one. It reports
// whether a job was dispatched.
func (e *Executor) next() bool {
	e.mu.Lock()
	if !e.started || e.inBackoff || e.executing {
		e.mu.Unlock()
		return false
	}
	entry := e.manager.NextJob()
	if entry == nil {
		e.mu.Unlock()
		return false
	}
	e.executing = true
	e.current = entry
	e.mu.Unlock()

	e.main.Post(func() { e.listener.OnStartJob(entry) })
	e.worker.Post(func() { e.run(entry) })
	return true
}

func (e *Executor) run(entry *Entry) {
	ctx := logging.ContextWithNewCorrelationID(e.baseCtx)
	log := logging.Ctx(ctx).With().Str("job_type", entry.Type).Str("job_key", entry.Key).Logger()
	log.Debug().Msg("Job started")

	start := time.Now()
	err := perform(ctx, entry)
	elapsed := time.Since(start)

	if err != nil {
		result := "failure"
		var pe *panicError
		if errors.As(err, &pe) {
			result = "panic"
			log.Error().Err(err).Bytes("stack", pe.stack).Dur("duration", elapsed).Msg("Job panicked")
		} else {
			log.Warn().Err(err).Dur("duration", elapsed).Dur("backoff", e.backoff).Msg("Job failed, pausing queue")
		}
		metrics.RecordJobRun(entry.Type, result, elapsed)
		e.fail()
		return
	}

	log.Debug().Dur("duration", elapsed).Msg("Job completed")
	metrics.RecordJobRun(entry.Type, "success", elapsed)
	e.manager.RemoveJob(entry)

	e.mu.Lock()
	e.executing = false
	e.current = nil
	e.mu.Unlock()

	if e.next() {
		return
	}
	// The completing job may have enqueued more work that is not yet
	// visible; check again on main before reporting an empty queue.
	e.main.Post(func() {
		if e.manager.HasJobs() {
			e.next()
			return
		}
		e.listener.OnQueueEmpty()
	})
}

func (e *Executor) fail() {
	e.mu.Lock()
	e.executing = false
	e.current = nil
	// A job that fails after Stop still pauses the queue.
	e.inBackoff = true
	metrics.SetBool(metrics.JobQueueBackoff, true)
	e.main.PostDelayed(e.resume, e.backoff)
	e.mu.Unlock()

	e.main.Post(e.listener.OnQueueFailed)
}

func (e *Executor) resume() {
	e.mu.Lock()
	e.inBackoff = false
	metrics.SetBool(metrics.JobQueueBackoff, false)
	e.mu.Unlock()

	logging.Debug().Msg("Job queue backoff elapsed")
	e.next()
}

type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrJobPanicked, p.value)
}

func (p *panicError) Unwrap() error {
	return ErrJobPanicked
}

func perform(ctx context.Context, entry *Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return entry.Perform(ctx)
}
