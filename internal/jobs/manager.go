// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/episodic/internal/dispatch"
	"github.com/tomtom215/episodic/internal/jobstore"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// JobListener is told about every job added to the queue. Callbacks are
// delivered on the main dispatcher.
type JobListener interface {
	OnJobAdded(entry *Entry)
}

// Manager owns the in-memory FIFO of pending jobs and mirrors it to the
// durable store. Every mutation of the queue and the store runs on the
// queue dispatcher, one at a time, so an add can never interleave with
// the initial load or with a store delete.
type Manager struct {
	store    jobstore.Store
	registry *Registry
	queue    dispatch.Dispatcher
	main     dispatch.Dispatcher

	mu   sync.Mutex
	jobs []*Entry

	listeners listenerSet[JobListener]

	loaded  chan struct{}
	loadErr error

	now func() time.Time
}

// NewManager creates a manager and schedules loading of all persisted
// jobs as the first operation on the queue dispatcher. Reads block until
// the load has run.
func NewManager(store jobstore.Store, registry *Registry, queue, main dispatch.Dispatcher) *Manager {
	m := &Manager{
		store:    store,
		registry: registry,
		queue:    queue,
		main:     main,
		loaded:   make(chan struct{}),
		now:      time.Now,
	}
	queue.Post(m.load)
	return m
}

func (m *Manager) load() {
	defer close(m.loaded)

	records, err := m.store.Scan(context.Background())
	if err != nil {
		m.loadErr = err
		metrics.JobStoreErrors.WithLabelValues("scan").Inc()
		logging.Error().Err(err).Msg("Failed to load persisted jobs")
		return
	}

	entries := make([]*Entry, 0, len(records))
	for _, rec := range records {
		job, err := m.registry.Unmarshal(rec.Type, rec.Blob)
		if err != nil {
			// The row stays in the store so it can be inspected or
			// recovered by a later build that knows the type.
			metrics.JobRecordsSkipped.Inc()
			logging.Error().
				Err(err).
				Uint64("record_id", rec.ID).
				Str("job_type", rec.Type).
				Str("job_key", rec.Key).
				Msg("Skipping persisted job that cannot be decoded")
			continue
		}
		entries = append(entries, &Entry{
			ID:         rec.ID,
			Job:        job,
			Type:       rec.Type,
			Key:        rec.Key,
			Priority:   rec.Priority,
			EnqueuedAt: rec.CreatedAt,
		})
	}

	m.mu.Lock()
	m.jobs = append(entries, m.jobs...)
	depth := len(m.jobs)
	m.mu.Unlock()

	metrics.JobQueueDepth.Set(float64(depth))
	logging.Info().Int("jobs", len(entries)).Int("skipped", len(records)-len(entries)).Msg("Job queue loaded")
}

// Loaded blocks until the initial load has run and returns its error.
func (m *Manager) Loaded() error {
	<-m.loaded
	return m.loadErr
}

// AddJob enqueues job. The job is validated and serialized before AddJob
// returns; appending, persisting and notifying listeners happen
// asynchronously, in call order. Enqueuing the same key twice produces
// two entries.
func (m *Manager) AddJob(job Job) error {
	typeName, blob, err := m.registry.Marshal(job)
	if err != nil {
		return err
	}

	entry := &Entry{
		Job:        job,
		Type:       typeName,
		Key:        job.JobKey(),
		EnqueuedAt: m.now().UTC(),
	}
	if p, ok := job.(Prioritized); ok {
		entry.Priority = p.JobPriority()
	}

	m.queue.Post(func() {
		m.mu.Lock()
		m.jobs = append(m.jobs, entry)
		depth := len(m.jobs)
		m.mu.Unlock()
		metrics.JobQueueDepth.Set(float64(depth))
		metrics.JobsEnqueued.WithLabelValues(typeName).Inc()

		id, err := m.store.Insert(context.Background(), jobstore.Record{
			Key:       entry.Key,
			Type:      entry.Type,
			Blob:      blob,
			Priority:  entry.Priority,
			CreatedAt: entry.EnqueuedAt,
		})
		if err != nil {
			// The job still runs from memory; it is lost only if the
			// process dies first.
			metrics.JobStoreErrors.WithLabelValues("insert").Inc()
			logging.Error().Err(err).Str("job_type", typeName).Str("job_key", entry.Key).Msg("Failed to persist job")
		} else {
			m.mu.Lock()
			entry.ID = id
			m.mu.Unlock()
		}

		logging.Debug().Str("job_type", typeName).Str("job_key", entry.Key).Msg("Job enqueued")
		m.main.Post(func() {
			m.listeners.each("job_added", func(l JobListener) { l.OnJobAdded(entry) })
		})
	})
	return nil
}

// NextJob returns the head of the queue without removing it, with its
// perform function bound from the registry, or nil if the queue is empty.
func (m *Manager) NextJob() *Entry {
	<-m.loaded

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) == 0 {
		return nil
	}
	entry := m.jobs[0]
	if entry.perform == nil {
		if perform, ok := m.registry.Performer(entry.Type); ok {
			entry.perform = perform
		}
	}
	return entry
}

// RemoveJob removes entry from memory immediately and deletes its store
// row asynchronously. The row is found by ID; only an entry whose insert
// failed falls back to the oldest row with its type and key. Removing an
// entry that is not queued is a no-op.
func (m *Manager) RemoveJob(entry *Entry) {
	<-m.loaded

	m.mu.Lock()
	idx := -1
	for i, e := range m.jobs {
		if e == entry {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.jobs = append(m.jobs[:idx], m.jobs[idx+1:]...)
	depth := len(m.jobs)
	m.mu.Unlock()
	metrics.JobQueueDepth.Set(float64(depth))

	m.queue.Post(func() {
		// Runs after the insert posted by AddJob, so entry.ID is final.
		var (
			deleted bool
			err     error
		)
		if entry.ID != 0 {
			deleted, err = m.store.DeleteByID(context.Background(), entry.ID)
		} else {
			deleted, err = m.store.Delete(context.Background(), entry.Type, entry.Key)
		}
		if err != nil {
			metrics.JobStoreErrors.WithLabelValues("delete").Inc()
			logging.Error().Err(err).Str("job_type", entry.Type).Str("job_key", entry.Key).Msg("Failed to delete persisted job")
			return
		}
		if !deleted {
			logging.Debug().Str("job_type", entry.Type).Str("job_key", entry.Key).Msg("No persisted row for removed job")
		}
	})
}

// HasJobs reports whether any job is pending.
func (m *Manager) HasJobs() bool {
	return m.Len() > 0
}

// Len returns the number of pending jobs.
func (m *Manager) Len() int {
	<-m.loaded
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Jobs returns a snapshot of the pending jobs in queue order.
func (m *Manager) Jobs() []EntryInfo {
	<-m.loaded
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EntryInfo, len(m.jobs))
	for i, e := range m.jobs {
		out[i] = e.info()
	}
	return out
}

// Clear empties the queue and the store asynchronously. Used on sign-out.
func (m *Manager) Clear() {
	m.queue.Post(func() {
		m.mu.Lock()
		n := len(m.jobs)
		m.jobs = nil
		m.mu.Unlock()
		metrics.JobQueueDepth.Set(0)

		if err := m.store.Clear(context.Background()); err != nil {
			metrics.JobStoreErrors.WithLabelValues("clear").Inc()
			logging.Error().Err(err).Msg("Failed to clear persisted jobs")
			return
		}
		logging.Info().Int("jobs", n).Msg("Job queue cleared")
	})
}

// AddListener registers l for job-added notifications.
func (m *Manager) AddListener(l JobListener) {
	m.listeners.add(l)
}

// RemoveListener unregisters l.
func (m *Manager) RemoveListener(l JobListener) {
	m.listeners.remove(l)
}
