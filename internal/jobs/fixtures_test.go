// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/episodic/internal/dispatch"
	"github.com/tomtom215/episodic/internal/jobstore"
)

type testJob struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Prio int    `json:"prio,omitempty"`
}

func (testJob) JobType() string    { return "test" }
func (j testJob) JobKey() string   { return j.Key }
func (j testJob) JobPriority() int { return j.Prio }

type otherJob struct {
	Key string `json:"key"`
}

func (otherJob) JobType() string  { return "other" }
func (j otherJob) JobKey() string { return j.Key }

var errTestFailure = errors.New("remote said no")

// recorder is the collaborator test jobs perform against.
type recorder struct {
	mu       sync.Mutex
	runs     []string
	failures map[string]int
	panics   map[string]bool
	hooks    map[string]func()
}

func newRecorder() *recorder {
	return &recorder{
		failures: make(map[string]int),
		panics:   make(map[string]bool),
		hooks:    make(map[string]func()),
	}
}

func (r *recorder) perform(_ context.Context, j testJob) error {
	r.mu.Lock()
	r.runs = append(r.runs, j.Name)
	hook := r.hooks[j.Name]
	shouldPanic := r.panics[j.Name]
	fail := r.failures[j.Name] > 0
	if fail {
		r.failures[j.Name]--
	}
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if shouldPanic {
		panic("job exploded")
	}
	if fail {
		return errTestFailure
	}
	return nil
}

func (r *recorder) failTimes(name string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = n
}

func (r *recorder) panicOn(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics[name] = true
}

func (r *recorder) onRun(name string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = fn
}

func (r *recorder) Runs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.runs))
	copy(out, r.runs)
	return out
}

// testEnv wires a manager over real queue and worker loops and a manual
// main dispatcher.
type testEnv struct {
	store   jobstore.Store
	reg     *Registry
	rec     *recorder
	queue   *dispatch.Loop
	worker  *dispatch.Loop
	main    *dispatch.Manual
	manager *Manager
}

func newTestEnv(t *testing.T, store jobstore.Store) *testEnv {
	t.Helper()
	if store == nil {
		store = jobstore.NewMemoryStore()
	}

	rec := newRecorder()
	reg := NewRegistry()
	Register(reg, rec.perform)
	Register(reg, func(context.Context, otherJob) error { return nil })

	env := &testEnv{
		store:  store,
		reg:    reg,
		rec:    rec,
		queue:  dispatch.NewLoop("test-queue"),
		worker: dispatch.NewLoop("test-worker"),
		main:   dispatch.NewManual(),
	}
	env.manager = NewManager(store, reg, env.queue, env.main)
	t.Cleanup(env.close)
	return env
}

func (e *testEnv) close() {
	e.worker.Close()
	e.queue.Close()
}

func (e *testEnv) add(t *testing.T, jobs ...Job) {
	t.Helper()
	for _, j := range jobs {
		if err := e.manager.AddJob(j); err != nil {
			t.Fatalf("AddJob(%v): %v", j, err)
		}
	}
}

// waitFor drives the main dispatcher until cond holds.
func waitFor(t *testing.T, main *dispatch.Manual, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if main != nil {
			main.RunPending()
		}
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle gives background loops time to do work that must NOT happen.
func settle(main *dispatch.Manual) {
	for i := 0; i < 20; i++ {
		if main != nil {
			main.RunPending()
		}
		time.Sleep(time.Millisecond)
	}
}

type execEvents struct {
	mu      sync.Mutex
	started []string
	empty   int
	failed  int
}

func (x *execEvents) OnStartJob(e *Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.started = append(x.started, e.Key)
}

func (x *execEvents) OnQueueEmpty() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.empty++
}

func (x *execEvents) OnQueueFailed() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.failed++
}

func (x *execEvents) counts() (started, empty, failed int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.started), x.empty, x.failed
}

type session struct {
	name    string
	mu      sync.Mutex
	empty   int
	failed  int
	onEvent func(s *session)
	log     *[]string
}

func (s *session) OnQueueEmpty() {
	s.mu.Lock()
	s.empty++
	s.mu.Unlock()
	s.record()
}

func (s *session) OnQueueFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
	s.record()
}

func (s *session) record() {
	if s.log != nil {
		*s.log = append(*s.log, s.name)
	}
	if s.onEvent != nil {
		s.onEvent(s)
	}
}

func (s *session) counts() (empty, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.empty, s.failed
}

type jobAdded struct {
	name    string
	log     *[]string
	onAdded func()
}

func (j *jobAdded) OnJobAdded(*Entry) {
	*j.log = append(*j.log, j.name)
	if j.onAdded != nil {
		j.onAdded()
	}
}
