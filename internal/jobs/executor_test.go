// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/episodic/internal/jobstore"
)

func (e *testEnv) executor(events *execEvents) *Executor {
	return NewExecutor(e.manager, e.main, e.worker, ExecutorConfig{}, events)
}

func runsEqual(env *testEnv, want ...string) func() bool {
	return func() bool { return reflect.DeepEqual(env.rec.Runs(), want) }
}

func TestExecutor_RunsJobsInOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)

	env.add(t, testJob{Name: "1", Key: "a"}, testJob{Name: "2", Key: "b"}, testJob{Name: "3", Key: "c"})
	env.queue.Flush()
	exec.Start()

	waitFor(t, env.main, "queue empty", func() bool {
		_, empty, _ := events.counts()
		return empty == 1
	})

	if runs := env.rec.Runs(); !reflect.DeepEqual(runs, []string{"1", "2", "3"}) {
		t.Errorf("runs = %v", runs)
	}
	events.mu.Lock()
	started := append([]string(nil), events.started...)
	events.mu.Unlock()
	if !reflect.DeepEqual(started, []string{"a", "b", "c"}) {
		t.Errorf("OnStartJob keys = %v", started)
	}

	env.queue.Flush()
	if got := storedKeys(t, env.store); len(got) != 0 {
		t.Errorf("store still has %v", got)
	}
}

func TestExecutor_StartOnEmptyQueueReportsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)

	exec.Start()
	exec.Start()

	waitFor(t, env.main, "queue empty", func() bool {
		_, empty, _ := events.counts()
		return empty == 1
	})
	settle(env.main)
	if started, empty, failed := events.counts(); started != 0 || empty != 1 || failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/1/0", started, empty, failed)
	}
}

func TestExecutor_DuplicateKeysBothRun(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)

	env.add(t, testJob{Name: "first", Key: "A"}, testJob{Name: "second", Key: "A"})
	env.queue.Flush()
	exec.Start()

	waitFor(t, env.main, "both runs", runsEqual(env, "first", "second"))
	waitFor(t, env.main, "queue empty", func() bool {
		_, empty, _ := events.counts()
		return empty == 1
	})
	env.queue.Flush()
	if got := storedKeys(t, env.store); len(got) != 0 {
		t.Errorf("store still has %v", got)
	}
}

func TestExecutor_JobsAddedWhileStartedRun(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)

	exec.Start()
	env.add(t, testJob{Name: "late", Key: "x"})

	waitFor(t, env.main, "late job", runsEqual(env, "late"))
}

func TestExecutor_FailurePausesWholeQueue(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)
	env.rec.failTimes("1", 1)

	env.add(t, testJob{Name: "1", Key: "a"}, testJob{Name: "2", Key: "b"})
	env.queue.Flush()
	exec.Start()

	waitFor(t, env.main, "queue failed", func() bool {
		_, _, failed := events.counts()
		return failed == 1
	})
	if !exec.State().Backoff {
		t.Error("expected executor to be in backoff")
	}
	if env.manager.Len() != 2 {
		t.Errorf("failed job left the queue, Len() = %d", env.manager.Len())
	}

	// A new job must not bypass the backoff.
	env.add(t, testJob{Name: "3", Key: "c"})
	env.queue.Flush()

	env.main.Advance(DefaultBackoffDelay - time.Second)
	settle(env.main)
	if runs := env.rec.Runs(); !reflect.DeepEqual(runs, []string{"1"}) {
		t.Fatalf("ran during backoff: %v", runs)
	}

	env.main.Advance(time.Second)
	waitFor(t, env.main, "retry and drain", runsEqual(env, "1", "1", "2", "3"))
	waitFor(t, env.main, "queue empty", func() bool {
		_, empty, _ := events.counts()
		return empty == 1
	})
	if exec.State().Backoff {
		t.Error("backoff still set after resume")
	}
}

func TestExecutor_PanicIsTreatedAsFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)
	env.rec.panicOn("boom")

	env.add(t, testJob{Name: "boom", Key: "a"}, testJob{Name: "2", Key: "b"})
	env.queue.Flush()
	exec.Start()

	waitFor(t, env.main, "queue failed", func() bool {
		_, _, failed := events.counts()
		return failed == 1
	})
	settle(env.main)

	if runs := env.rec.Runs(); !reflect.DeepEqual(runs, []string{"boom"}) {
		t.Errorf("runs = %v", runs)
	}
	if head := env.manager.NextJob(); head == nil || head.Key != "a" {
		t.Errorf("panicking job should stay at the head")
	}
}

func TestExecutor_StopLetsCurrentJobFinish(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.rec.onRun("1", func() {
		close(entered)
		<-release
	})

	env.add(t, testJob{Name: "1", Key: "a"}, testJob{Name: "2", Key: "b"})
	env.queue.Flush()
	exec.Start()

	<-entered
	exec.Stop()
	if exec.IsStarted() {
		t.Fatal("IsStarted() after Stop")
	}
	close(release)

	waitFor(t, env.main, "first job removed", func() bool { return env.manager.Len() == 1 })
	settle(env.main)
	if runs := env.rec.Runs(); !reflect.DeepEqual(runs, []string{"1"}) {
		t.Fatalf("runs after stop = %v", runs)
	}
	if _, empty, _ := events.counts(); empty != 0 {
		t.Errorf("OnQueueEmpty fired with jobs pending")
	}

	exec.Start()
	waitFor(t, env.main, "second job", runsEqual(env, "1", "2"))
}

func TestExecutor_BackoffHoldsAcrossStop(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)
	env.rec.failTimes("1", 1)

	env.add(t, testJob{Name: "1", Key: "a"})
	env.queue.Flush()
	exec.Start()

	waitFor(t, env.main, "queue failed", func() bool {
		_, _, failed := events.counts()
		return failed == 1
	})
	exec.Stop()
	if !exec.State().Backoff {
		t.Fatal("Stop cleared the backoff")
	}

	env.main.Advance(10 * time.Second)
	exec.Start()
	settle(env.main)
	env.main.Advance(DefaultBackoffDelay - 11*time.Second)
	settle(env.main)
	if runs := env.rec.Runs(); !reflect.DeepEqual(runs, []string{"1"}) {
		t.Fatalf("retried inside the backoff window after restart: %v", runs)
	}

	env.main.Advance(time.Second)
	waitFor(t, env.main, "retry after window", runsEqual(env, "1", "1"))
}

func TestExecutor_FailureAfterStopStillBacksOff(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)
	env.rec.failTimes("1", 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.rec.onRun("1", func() {
		select {
		case <-entered:
		default:
			close(entered)
			<-release
		}
	})

	env.add(t, testJob{Name: "1", Key: "a"})
	env.queue.Flush()
	exec.Start()

	<-entered
	exec.Stop()
	close(release)
	waitFor(t, env.main, "queue failed", func() bool {
		_, _, failed := events.counts()
		return failed == 1
	})

	exec.Start()
	settle(env.main)
	if runs := env.rec.Runs(); len(runs) != 1 {
		t.Fatalf("retried without backoff: %v", runs)
	}
	env.main.Advance(DefaultBackoffDelay)
	waitFor(t, env.main, "retry", runsEqual(env, "1", "1"))
}

func TestExecutor_JobEnqueuingAnotherJob(t *testing.T) {
	env := newTestEnv(t, nil)
	events := &execEvents{}
	exec := env.executor(events)

	env.rec.onRun("parent", func() {
		if err := env.manager.AddJob(testJob{Name: "child", Key: "c"}); err != nil {
			t.Errorf("AddJob from job: %v", err)
		}
	})

	env.add(t, testJob{Name: "parent", Key: "p"})
	env.queue.Flush()
	exec.Start()

	waitFor(t, env.main, "child run", runsEqual(env, "parent", "child"))
	waitFor(t, env.main, "queue drained", func() bool {
		_, empty, _ := events.counts()
		return empty >= 1 && !env.manager.HasJobs()
	})
}

func TestExecutor_PersistedJobsRunAfterRestart(t *testing.T) {
	store := jobstore.NewMemoryStore()

	before := newTestEnv(t, store)
	before.add(t, testJob{Name: "1", Key: "a"}, testJob{Name: "2", Key: "b"})
	before.queue.Flush()
	before.close()

	after := newTestEnv(t, store)
	events := &execEvents{}
	exec := after.executor(events)
	exec.Start()

	waitFor(t, after.main, "replayed jobs", runsEqual(after, "1", "2"))
	waitFor(t, after.main, "queue empty", func() bool {
		_, empty, _ := events.counts()
		return empty == 1
	})
	after.queue.Flush()
	if store.Len() != 0 {
		t.Errorf("store has %d rows after drain", store.Len())
	}
}

func TestExecutor_StateReportsCurrentJob(t *testing.T) {
	env := newTestEnv(t, nil)
	exec := env.executor(&execEvents{})

	entered := make(chan struct{})
	release := make(chan struct{})
	env.rec.onRun("slow", func() {
		close(entered)
		<-release
	})

	env.add(t, testJob{Name: "slow", Key: "s"})
	env.queue.Flush()
	exec.Start()
	<-entered

	st := exec.State()
	if !st.Started || !st.Executing || st.Current == nil || st.Current.Key != "s" {
		t.Errorf("State() = %+v", st)
	}
	close(release)

	waitFor(t, env.main, "idle", func() bool { return !exec.State().Executing })
	if exec.State().Current != nil {
		t.Error("Current still set after completion")
	}
}
