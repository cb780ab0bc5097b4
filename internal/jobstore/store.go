// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package jobstore persists pending jobs so they survive a process
// restart. A store is pure storage: it appends records, deletes them by
// ID or by (type, key) and scans them back in insertion order. All calls are made
// from the job manager's serialized queue loop, so implementations only
// need to be safe against Close racing with an operation.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("job store closed")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown job store backend")
)

// Record is one persisted job.
type Record struct {
	// ID is assigned by the store on insert and increases with insertion order.
	ID        uint64    `json:"id"`
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	Blob      []byte    `json:"blob"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the durable job table.
type Store interface {
	// Insert appends rec and returns its assigned ID.
	Insert(ctx context.Context, rec Record) (uint64, error)

	// Delete removes the oldest record matching typeName and key. It
	// reports whether a record was removed; no match is not an error.
	Delete(ctx context.Context, typeName, key string) (bool, error)

	// DeleteByID removes the record with the given ID and reports whether
	// it existed.
	DeleteByID(ctx context.Context, id uint64) (bool, error)

	// Scan returns every record in insertion order.
	Scan(ctx context.Context) ([]Record, error)

	// Clear removes every record.
	Clear(ctx context.Context) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Path       string
	SyncWrites bool
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "badger":
		return OpenBadger(cfg.Path, cfg.SyncWrites)
	case "duckdb":
		return OpenDuckDB(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
