// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	Register(reg, func(context.Context, testJob) error { return nil })

	in := testJob{Name: "mark", Key: "show=1&season=2", Prio: 3}
	typ, blob, err := reg.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if typ != "test" {
		t.Errorf("type = %q, want test", typ)
	}

	out, err := reg.Unmarshal(typ, blob)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip = %#v, want %#v", out, in)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	Register(reg, func(context.Context, testJob) error { return nil })

	if _, _, err := reg.Marshal(otherJob{Key: "x"}); !errors.Is(err, ErrUnknownJobType) {
		t.Errorf("Marshal unregistered = %v, want ErrUnknownJobType", err)
	}
	if _, err := reg.Unmarshal("other", []byte(`{}`)); !errors.Is(err, ErrUnknownJobType) {
		t.Errorf("Unmarshal unregistered = %v, want ErrUnknownJobType", err)
	}
	if _, ok := reg.Performer("other"); ok {
		t.Error("Performer for unregistered type should not exist")
	}
}

func TestRegistry_CorruptBlob(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	Register(reg, func(context.Context, testJob) error { return nil })

	if _, err := reg.Unmarshal("test", []byte(`{"name":`)); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	Register(reg, func(context.Context, testJob) error { return nil })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register(reg, func(context.Context, testJob) error { return nil })
}

func TestRegistry_PerformerBindsCollaborators(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var got testJob
	Register(reg, func(_ context.Context, j testJob) error {
		got = j
		return errTestFailure
	})
	Register(reg, func(context.Context, otherJob) error { return nil })

	perform, ok := reg.Performer("test")
	if !ok {
		t.Fatal("performer not found")
	}
	err := perform(context.Background(), testJob{Name: "n", Key: "k"})
	if !errors.Is(err, errTestFailure) {
		t.Errorf("perform error = %v", err)
	}
	if got.Name != "n" {
		t.Errorf("perform saw %#v", got)
	}
	if err := perform(context.Background(), otherJob{}); err == nil {
		t.Error("expected error for mismatched Go type")
	}

	if types := reg.Types(); !reflect.DeepEqual(types, []string{"other", "test"}) {
		t.Errorf("Types() = %v", types)
	}
}
