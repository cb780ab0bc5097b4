// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package actions

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// DefaultWorkers bounds how many top-level actions execute at once.
const DefaultWorkers = 8

// InFlightAction describes a running execution for reporting.
type InFlightAction struct {
	Key     string        `json:"key"`
	Action  string        `json:"action"`
	Running time.Duration `json:"running_ns"`
}

// Manager coalesces concurrent invocations by key. A single Manager is
// created by the application and shared by every caller.
type Manager struct {
	sem     *semaphore.Weighted
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*call
	closed   bool
}

// NewManager creates a Manager running at most workers top-level actions
// concurrently. Actions invoked from inside another action run on their
// parent's slot so nested invocations cannot starve the pool.
func NewManager(workers int) *Manager {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sem:      semaphore.NewWeighted(int64(workers)),
		baseCtx:  ctx,
		cancel:   cancel,
		inflight: make(map[string]*call),
	}
}

// InvokeAsync starts action for params, or joins the execution already
// running for the same key, and returns without blocking.
//
// ctx is used only for its logging values and to detect nesting; the
// execution itself is shared and runs under the manager's lifetime.
// Invoking a key from inside that key's own execution would wait on
// itself forever, so it completes immediately without a result.
func InvokeAsync[P, R any](ctx context.Context, m *Manager, action Action[P, R], params P) *Handle[R] {
	key := action.Key(params)
	name := actionName(key)
	log := logging.Ctx(ctx).With().Str("action_key", key).Logger()

	parent := chainFromContext(ctx)
	if parent.contains(key) {
		metrics.ActionInvocations.WithLabelValues(name, "nested").Inc()
		log.Error().Msg("Action invoked from inside its own execution, completing without result")
		return &Handle[R]{c: completedCall(key)}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		metrics.ActionInvocations.WithLabelValues(name, "rejected").Inc()
		log.Warn().Msg("Action manager closed, completing without result")
		return &Handle[R]{c: completedCall(key)}
	}
	if c, ok := m.inflight[key]; ok {
		if parent != nil && !c.slotted && !c.lending {
			// The parent holds a slot and is about to wait on c; c waiting
			// for a slot of its own could deadlock a full pool.
			c.lending = true
			close(c.lent)
		}
		m.mu.Unlock()
		metrics.ActionInvocations.WithLabelValues(name, "joined").Inc()
		log.Debug().Msg("Joining in-flight action")
		return &Handle[R]{c: c}
	}

	execCtx, cancel := context.WithCancel(m.baseCtx)
	execCtx = withChain(execCtx, parent.push(key))
	execCtx = logging.ContextWithCorrelationID(execCtx, correlationID(ctx))
	c := newCall(key, cancel)
	c.slotted = parent != nil
	m.inflight[key] = c
	m.wg.Add(1)
	depth := len(m.inflight)
	m.mu.Unlock()

	metrics.ActionInvocations.WithLabelValues(name, "started").Inc()
	metrics.ActionsInFlight.Set(float64(depth))

	go m.run(execCtx, c, parent != nil, func(ctx context.Context) (interface{}, error) {
		return action.Execute(ctx, params)
	})
	return &Handle[R]{c: c}
}

// InvokeSync invokes action and waits for the shared result. ok is false
// if the action failed or ctx ended first.
func InvokeSync[P, R any](ctx context.Context, m *Manager, action Action[P, R], params P) (R, bool) {
	return InvokeAsync(ctx, m, action, params).Await(ctx)
}

func (m *Manager) run(ctx context.Context, c *call, nested bool, execute func(context.Context) (interface{}, error)) {
	defer m.wg.Done()
	defer m.finish(c)

	name := actionName(c.key)
	log := logging.Ctx(ctx).With().Str("action_key", c.key).Logger()

	if !nested {
		held, err := m.acquire(ctx, c)
		if err != nil {
			metrics.RecordActionResult(name, "cancelled", time.Since(c.started))
			log.Debug().Err(err).Msg("Action cancelled before it started")
			return
		}
		if held {
			defer m.sem.Release(1)
		} else {
			log.Debug().Msg("Running on the slot of a nested caller")
		}
	}

	start := time.Now()
	value, err := safeExecute(ctx, execute)
	elapsed := time.Since(start)

	var pe *panicError
	switch {
	case err == nil:
		c.value, c.ok = value, true
		metrics.RecordActionResult(name, "success", elapsed)
		log.Debug().Dur("duration", elapsed).Msg("Action completed")
	case errors.Is(err, ErrActionFailed):
		metrics.RecordActionResult(name, "failed", elapsed)
		log.Info().Err(err).Dur("duration", elapsed).Msg("Action failed")
	case errors.Is(err, context.Canceled):
		metrics.RecordActionResult(name, "cancelled", elapsed)
		log.Debug().Err(err).Msg("Action cancelled")
	case errors.As(err, &pe):
		metrics.RecordActionResult(name, "panic", elapsed)
		log.Error().Err(err).Bytes("stack", pe.stack).Msg("Action panicked")
	default:
		metrics.RecordActionResult(name, "error", elapsed)
		log.Error().Err(err).Dur("duration", elapsed).Msg("Action failed unexpectedly")
	}
}

// acquire waits for a worker slot. It returns held=false without error
// when a nested invocation joined c first and lent it its parent's slot.
func (m *Manager) acquire(ctx context.Context, c *call) (held bool, err error) {
	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-c.lent:
			stop()
		case <-waitCtx.Done():
		}
	}()

	if err := m.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	m.mu.Lock()
	c.slotted = true
	m.mu.Unlock()
	return true, nil
}

// finish forgets the key before waking awaiters, so an awaiter that
// invokes the same key again starts a new execution.
func (m *Manager) finish(c *call) {
	m.mu.Lock()
	if m.inflight[c.key] == c {
		delete(m.inflight, c.key)
	}
	depth := len(m.inflight)
	m.mu.Unlock()

	metrics.ActionsInFlight.Set(float64(depth))
	c.cancel()
	close(c.done)
}

// InFlight returns the number of running executions.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// InFlightKeys returns the keys of running executions, sorted.
func (m *Manager) InFlightKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.inflight))
	for k := range m.inflight {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot describes every running execution, sorted by key.
func (m *Manager) Snapshot() []InFlightAction {
	m.mu.Lock()
	out := make([]InFlightAction, 0, len(m.inflight))
	for k, c := range m.inflight {
		out = append(out, InFlightAction{Key: k, Action: actionName(k), Running: time.Since(c.started)})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close cancels every running execution, rejects new invocations and
// waits for running executions to return or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d actions: %w", m.InFlight(), ctx.Err())
	}
}

type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("action panicked: %v", p.value)
}

func safeExecute(ctx context.Context, execute func(context.Context) (interface{}, error)) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return execute(ctx)
}

func correlationID(ctx context.Context) string {
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		return id
	}
	return logging.GenerateCorrelationID()
}

// chain is the stack of action keys executing on a context, innermost
// first.
type chain struct {
	key    string
	parent *chain
}

type chainKey struct{}

func chainFromContext(ctx context.Context) *chain {
	c, _ := ctx.Value(chainKey{}).(*chain)
	return c
}

func withChain(ctx context.Context, c *chain) context.Context {
	return context.WithValue(ctx, chainKey{}, c)
}

func (c *chain) contains(key string) bool {
	for n := c; n != nil; n = n.parent {
		if n.key == key {
			return true
		}
	}
	return false
}

func (c *chain) push(key string) *chain {
	return &chain{key: key, parent: c}
}
