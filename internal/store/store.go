// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package store persists ephemeral working copies and batch sessions in
// BadgerDB. Records are JSON values under string key prefixes; expiry is the
// cleanup service's job, not the store's.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Key prefixes for BadgerDB storage
const (
	workingCopyKeyPrefix  = "workingcopy:"
	batchSessionKeyPrefix = "batchsession:"
)

// Store is the BadgerDB-backed ephemeral store.
type Store struct {
	db *badger.DB
}

// Open opens a badger database at path. An in-memory store is used for
// tests and throwaway runs.
func Open(path string, inMemory bool) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already open badger database.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateWorkingCopy stores a new working copy. UpdatedAt is stamped and
// Version starts at 1 unless already set.
func (s *Store) CreateWorkingCopy(ctx context.Context, wc *ShapeWorkingCopy) error {
	if wc.Version == 0 {
		wc.Version = 1
	}
	if wc.UpdatedAt.IsZero() {
		wc.UpdatedAt = time.Now().UTC()
	}
	return s.put(workingCopyKeyPrefix+wc.ID, wc)
}

// GetWorkingCopy retrieves a working copy by ID.
func (s *Store) GetWorkingCopy(ctx context.Context, id string) (*ShapeWorkingCopy, error) {
	var wc ShapeWorkingCopy
	if err := s.get(workingCopyKeyPrefix+id, &wc); err != nil {
		return nil, err
	}
	return &wc, nil
}

// UpdateWorkingCopy overwrites an existing working copy, bumping Version and
// UpdatedAt. Missing records are ErrNotFound.
func (s *Store) UpdateWorkingCopy(ctx context.Context, wc *ShapeWorkingCopy) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(workingCopyKeyPrefix + wc.ID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get working copy: %w", err)
		}

		wc.Version++
		wc.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(wc)
		if err != nil {
			return fmt.Errorf("marshal working copy: %w", err)
		}
		return txn.Set(key, data)
	})
}

// DeleteWorkingCopy removes a working copy. Deleting a missing record is not
// an error.
func (s *Store) DeleteWorkingCopy(ctx context.Context, id string) error {
	return s.delete(workingCopyKeyPrefix + id)
}

// ListWorkingCopies returns all working copies.
func (s *Store) ListWorkingCopies(ctx context.Context) ([]*ShapeWorkingCopy, error) {
	var out []*ShapeWorkingCopy
	err := s.scan(workingCopyKeyPrefix, func(val []byte) error {
		var wc ShapeWorkingCopy
		if err := json.Unmarshal(val, &wc); err != nil {
			return fmt.Errorf("unmarshal working copy: %w", err)
		}
		out = append(out, &wc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBatchSession stores a new batch session, stamping CreatedAt and
// LastActivityAt unless already set.
func (s *Store) CreateBatchSession(ctx context.Context, session *BatchSession) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = now
	}
	return s.put(batchSessionKeyPrefix+session.SessionID, session)
}

// GetBatchSession retrieves a batch session by ID.
func (s *Store) GetBatchSession(ctx context.Context, id string) (*BatchSession, error) {
	var session BatchSession
	if err := s.get(batchSessionKeyPrefix+id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateBatchSession overwrites an existing session and bumps
// LastActivityAt. Missing records are ErrNotFound.
func (s *Store) UpdateBatchSession(ctx context.Context, session *BatchSession) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(batchSessionKeyPrefix + session.SessionID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get batch session: %w", err)
		}

		session.LastActivityAt = time.Now().UTC()

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal batch session: %w", err)
		}
		return txn.Set(key, data)
	})
}

// UpdateSessionActivity bumps LastActivityAt without touching anything else.
func (s *Store) UpdateSessionActivity(ctx context.Context, id string) error {
	return s.mutateSession(id, func(session *BatchSession) {})
}

// UpdateSessionStatus transitions a session's status and bumps
// LastActivityAt.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error {
	return s.mutateSession(id, func(session *BatchSession) {
		session.Status = status
	})
}

// DeleteBatchSession removes a session. Deleting a missing record is not an
// error.
func (s *Store) DeleteBatchSession(ctx context.Context, id string) error {
	return s.delete(batchSessionKeyPrefix + id)
}

// ListBatchSessions returns all batch sessions.
func (s *Store) ListBatchSessions(ctx context.Context) ([]*BatchSession, error) {
	return s.scanSessions(func(session *BatchSession) bool { return true })
}

// SessionsByNode returns the sessions owned by a node that are paused or
// running, the ones a restarting node needs to pick back up.
func (s *Store) SessionsByNode(ctx context.Context, nodeID string) ([]*BatchSession, error) {
	return s.scanSessions(func(session *BatchSession) bool {
		if session.NodeID != nodeID {
			return false
		}
		return session.Status == StatusPaused || session.Status == StatusRunning
	})
}

func (s *Store) mutateSession(id string, mutate func(*BatchSession)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(batchSessionKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get batch session: %w", err)
		}

		var session BatchSession
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		}); err != nil {
			return fmt.Errorf("unmarshal batch session: %w", err)
		}

		mutate(&session)
		session.LastActivityAt = time.Now().UTC()

		data, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("marshal batch session: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (s *Store) scanSessions(keep func(*BatchSession) bool) ([]*BatchSession, error) {
	var out []*BatchSession
	err := s.scan(batchSessionKeyPrefix, func(val []byte) error {
		var session BatchSession
		if err := json.Unmarshal(val, &session); err != nil {
			return fmt.Errorf("unmarshal batch session: %w", err)
		}
		if keep(&session) {
			out = append(out, &session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete record: %w", err)
		}
		return nil
	})
}

func (s *Store) scan(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
