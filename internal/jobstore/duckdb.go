// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/tomtom215/episodic/internal/logging"
)

var duckdbSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS jobs_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id         BIGINT PRIMARY KEY DEFAULT nextval('jobs_id_seq'),
		job_key    VARCHAR NOT NULL,
		job_type   VARCHAR NOT NULL,
		job_blob   BLOB NOT NULL,
		priority   INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_type_key ON jobs (job_type, job_key)`,
}

// DuckDBStore keeps job records in a DuckDB table. It is the relational
// alternative for deployments that already inspect local state with SQL.
type DuckDBStore struct {
	conn *sql.DB
	path string

	mu     sync.RWMutex
	closed bool
}

// OpenDuckDB opens (or creates) the database file at path. An empty path
// opens an in-memory database.
func OpenDuckDB(path string) (*DuckDBStore, error) {
	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	if path == "" {
		connStr = ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false"
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and matches the
	// single-writer access pattern of the queue loop.
	conn.SetMaxOpenConns(1)

	for _, stmt := range duckdbSchema {
		if _, err := conn.Exec(stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to initialize job schema: %w", err)
		}
	}

	logging.Info().Str("path", path).Msg("Job store opened (duckdb)")
	return &DuckDBStore{conn: conn, path: path}, nil
}

func (s *DuckDBStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Insert implements Store.
func (s *DuckDBStore) Insert(ctx context.Context, rec Record) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var id int64
	err := s.conn.QueryRowContext(ctx,
		`INSERT INTO jobs (job_key, job_type, job_blob, priority, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		rec.Key, rec.Type, rec.Blob, rec.Priority, rec.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job record: %w", err)
	}
	return uint64(id), nil
}

// Delete implements Store.
func (s *DuckDBStore) Delete(ctx context.Context, typeName, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = (
			SELECT min(id) FROM jobs WHERE job_type = ? AND job_key = ?
		)`,
		typeName, key,
	)
	if err != nil {
		return false, fmt.Errorf("delete job record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete job record: %w", err)
	}
	return n > 0, nil
}

// DeleteByID implements Store.
func (s *DuckDBStore) DeleteByID(ctx context.Context, id uint64) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	res, err := s.conn.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, int64(id))
	if err != nil {
		return false, fmt.Errorf("delete job record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete job record %d: %w", id, err)
	}
	return n > 0, nil
}

// Scan implements Store.
func (s *DuckDBStore) Scan(ctx context.Context) ([]Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, job_key, job_type, job_blob, priority, created_at FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan job records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			id  int64
		)
		if err := rows.Scan(&id, &rec.Key, &rec.Type, &rec.Blob, &rec.Priority, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		rec.ID = uint64(id)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan job records: %w", err)
	}
	return records, nil
}

// Clear implements Store.
func (s *DuckDBStore) Clear(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("clear job records: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

var _ Store = (*DuckDBStore)(nil)
