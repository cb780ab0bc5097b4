// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package dispatch

import (
	"testing"
	"time"
)

func TestManual_NothingRunsUntilDriven(t *testing.T) {
	t.Parallel()

	m := NewManual()
	ran := false
	m.Post(func() { ran = true })

	if ran {
		t.Fatal("callback ran before RunPending")
	}
	if n := m.RunPending(); n != 1 {
		t.Errorf("RunPending() = %d, want 1", n)
	}
	if !ran {
		t.Error("callback did not run")
	}
}

func TestManual_AdvanceRunsInTimeOrder(t *testing.T) {
	t.Parallel()

	m := NewManual()
	var order []string
	m.PostDelayed(func() { order = append(order, "30s") }, 30*time.Second)
	m.PostDelayed(func() { order = append(order, "2s") }, 2*time.Second)
	m.Post(func() { order = append(order, "now") })

	m.Advance(time.Second)
	if len(order) != 1 || order[0] != "now" {
		t.Fatalf("after 1s got %v", order)
	}

	m.Advance(29 * time.Second)
	want := []string{"now", "2s", "30s"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
	if m.Now() != 30*time.Second {
		t.Errorf("Now() = %v, want 30s", m.Now())
	}
}

func TestManual_CallbackSeesItsOwnTime(t *testing.T) {
	t.Parallel()

	m := NewManual()
	var nested time.Duration
	m.PostDelayed(func() {
		m.PostDelayed(func() { nested = m.Now() }, 5*time.Second)
	}, 10*time.Second)

	m.Advance(time.Minute)
	if nested != 15*time.Second {
		t.Errorf("nested callback ran at %v, want 15s", nested)
	}
}

func TestManual_TimerStop(t *testing.T) {
	t.Parallel()

	m := NewManual()
	ran := false
	timer := m.PostDelayed(func() { ran = true }, 2*time.Second)

	if !timer.Stop() {
		t.Fatal("expected Stop to succeed")
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", m.Pending())
	}
	m.Advance(time.Minute)
	if ran {
		t.Error("stopped callback ran")
	}

	fired := m.PostDelayed(func() {}, 0)
	m.RunPending()
	if fired.Stop() {
		t.Error("Stop after run should report false")
	}
}
