// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// Codec serializes jobs for the durable store.
type Codec interface {
	Marshal(job Job) (typeName string, blob []byte, err error)
	Unmarshal(typeName string, blob []byte) (Job, error)
}

type registration struct {
	decode  func(blob []byte) (Job, error)
	perform PerformFunc
}

// Registry maps job type names to a decoder and a perform function. It
// is the Codec used by the Manager.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds job type T. T must be a struct value type whose zero value
// reports its JobType. Registering a name twice panics.
//
//	jobs.Register(reg, func(ctx context.Context, j EpisodeFlagJob) error {
//	    return uploader.Upload(ctx, j)
//	})
func Register[T Job](r *Registry, perform func(ctx context.Context, job T) error) {
	var zero T
	name := zero.JobType()
	if name == "" {
		panic("jobs: Register with empty job type")
	}

	reg := registration{
		decode: func(blob []byte) (Job, error) {
			var v T
			if err := json.Unmarshal(blob, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		perform: func(ctx context.Context, job Job) error {
			typed, ok := job.(T)
			if !ok {
				return fmt.Errorf("job type %s: unexpected Go type %T", name, job)
			}
			return perform(ctx, typed)
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[name]; dup {
		panic("jobs: duplicate registration of job type " + name)
	}
	r.types[name] = reg
}

// Marshal implements Codec.
func (r *Registry) Marshal(job Job) (string, []byte, error) {
	name := job.JobType()
	r.mu.RLock()
	_, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownJobType, name)
	}

	blob, err := json.Marshal(job)
	if err != nil {
		return "", nil, fmt.Errorf("marshal job %s: %w", name, err)
	}
	return name, blob, nil
}

// Unmarshal implements Codec.
func (r *Registry) Unmarshal(typeName string, blob []byte) (Job, error) {
	r.mu.RLock()
	reg, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, typeName)
	}

	job, err := reg.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", typeName, err)
	}
	return job, nil
}

// Performer returns the perform function for typeName.
func (r *Registry) Performer(typeName string) (PerformFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[typeName]
	if !ok {
		return nil, false
	}
	return reg.perform, true
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ Codec = (*Registry)(nil)
