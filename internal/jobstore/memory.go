// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobstore

import (
	"context"
	"sync"
)

// MemoryStore is a non-durable Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  uint64
	records []Record
	closed  bool

	// FailInserts makes Insert return this error when non-nil.
	FailInserts error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, rec Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	if s.FailInserts != nil {
		return 0, s.FailInserts
	}
	s.nextID++
	rec.ID = s.nextID
	rec.Blob = append([]byte(nil), rec.Blob...)
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, typeName, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	for i, rec := range s.records {
		if rec.Type == typeName && rec.Key == key {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// DeleteByID implements Store.
func (s *MemoryStore) DeleteByID(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records = nil
	return nil
}

// Close implements Store. A closed MemoryStore can be reopened with
// Reopen, which tests use to simulate a restart without losing data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen makes a closed store usable again with its records intact.
func (s *MemoryStore) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
