// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package jobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/episodic/internal/logging"
)

// Key layout: "job:" followed by the big-endian record ID, so a prefix
// iteration returns records in insertion order.
const (
	prefixJob   = "job:"
	sequenceKey = "seq:job"

	sequenceBandwidth = 64
	closeTimeout      = 30 * time.Second
)

// BadgerStore keeps job records in BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	dir string

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) a store in dir.
func OpenBadger(dir string, syncWrites bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = syncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquire job sequence: %w", err)
	}

	logging.Info().Str("path", dir).Bool("sync_writes", syncWrites).Msg("Job store opened")
	return &BadgerStore{db: db, seq: seq, dir: dir}, nil
}

func recordKey(id uint64) []byte {
	key := make([]byte, len(prefixJob)+8)
	copy(key, prefixJob)
	binary.BigEndian.PutUint64(key[len(prefixJob):], id)
	return key
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Insert implements Store.
func (s *BadgerStore) Insert(_ context.Context, rec Record) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	id, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next job id: %w", err)
	}
	// Sequence starts at 0; IDs start at 1 so zero means "unsaved".
	rec.ID = id + 1

	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal job record: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), data)
	}); err != nil {
		return 0, fmt.Errorf("write job record: %w", err)
	}
	return rec.ID, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, typeName, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixJob)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if rec.Type != typeName || rec.Key != key {
				continue
			}

			deleted = true
			return txn.Delete(item.KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete job record: %w", err)
	}
	return deleted, nil
}

// DeleteByID implements Store.
func (s *BadgerStore) DeleteByID(_ context.Context, id uint64) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := recordKey(id)
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		deleted = true
		return txn.Delete(k)
	})
	if err != nil {
		return false, fmt.Errorf("delete job record %d: %w", id, err)
	}
	return deleted, nil
}

// Scan implements Store. Values that are not valid records are logged and
// skipped; the job layer deals with blobs it cannot decode.
func (s *BadgerStore) Scan(ctx context.Context) ([]Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixJob)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				logging.Error().Err(err).Hex("key", item.KeyCopy(nil)).Msg("Skipping unreadable job record")
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan job records: %w", err)
	}
	return records, nil
}

// Clear implements Store.
func (s *BadgerStore) Clear(_ context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.DropPrefix([]byte(prefixJob)); err != nil {
		return fmt.Errorf("clear job records: %w", err)
	}
	return nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release job sequence")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Job store closed")
		return nil
	case <-time.After(closeTimeout):
		return errors.New("job store close timed out")
	}
}

var _ Store = (*BadgerStore)(nil)
