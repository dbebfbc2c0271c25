// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/setlist/internal/logging"
)

// Key prefixes for BadgerDB storage
const (
	cacheKeyPrefix = "cache:"
	blobKeyPrefix  = "blob:"
	queueKeyPrefix = "queue:"
	metaKeyPrefix  = "meta:"

	metaCursor   = metaKeyPrefix + "cursor"
	metaQueueSeq = metaKeyPrefix + "queue_seq"
)

// Store persists the offline cache and the pending-action queue in BadgerDB.
// Queue keys embed a monotonic sequence so prefix iteration is FIFO.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	mu     sync.RWMutex
	closed bool
}

// OpenStore opens (or creates) the store under dir.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	seq, err := db.GetSequence([]byte(metaQueueSeq), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue sequence: %w", err)
	}

	logging.Info().Str("path", dir).Msg("offline store opened")
	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close BadgerDB: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func queueKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", queueKeyPrefix, seq))
}

// PutCache writes entry and, when blob is non-nil, its bytes in one
// transaction.
func (s *Store) PutCache(entry CacheEntry, blob []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(cacheKeyPrefix+entry.ContentID), data); err != nil {
			return fmt.Errorf("set cache entry: %w", err)
		}
		if blob != nil {
			if err := txn.Set([]byte(blobKeyPrefix+entry.ContentID), blob); err != nil {
				return fmt.Errorf("set blob: %w", err)
			}
		}
		return nil
	})
}

// GetCache returns the entry for id or ErrNotCached.
func (s *Store) GetCache(id string) (CacheEntry, error) {
	if err := s.check(); err != nil {
		return CacheEntry{}, err
	}
	var entry CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotCached
		}
		if err != nil {
			return fmt.Errorf("get cache entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	return entry, err
}

// ReadBlob returns the cached bytes for id and records the access.
func (s *Store) ReadBlob(id string, now time.Time) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(cacheKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotCached
		}
		if err != nil {
			return fmt.Errorf("get cache entry: %w", err)
		}
		var entry CacheEntry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal cache entry: %w", err)
		}

		blobItem, err := txn.Get([]byte(blobKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotCached
		}
		if err != nil {
			return fmt.Errorf("get blob: %w", err)
		}
		if blob, err = blobItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copy blob: %w", err)
		}

		entry.LastAccessed = now
		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		return txn.Set(key, data)
	})
	return blob, err
}

// DeleteCache removes the entry and blob for id. Missing entries are not an
// error.
func (s *Store) DeleteCache(id string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{cacheKeyPrefix + id, blobKeyPrefix + id} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// ListCache returns every cache entry in key order.
func (s *Store) ListCache() ([]CacheEntry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var entries []CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(cacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry CacheEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("unmarshal cache entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// Enqueue appends entry to the queue, assigning its sequence number.
func (s *Store) Enqueue(entry QueueEntry) (QueueEntry, error) {
	if err := s.check(); err != nil {
		return QueueEntry{}, err
	}
	seq, err := s.seq.Next()
	if err != nil {
		return QueueEntry{}, fmt.Errorf("next queue sequence: %w", err)
	}
	entry.Seq = seq
	if entry.State == "" {
		entry.State = StatePending
	}
	if err := s.UpdateQueueEntry(entry); err != nil {
		return QueueEntry{}, err
	}
	return entry, nil
}

// UpdateQueueEntry overwrites the entry stored under entry.Seq.
func (s *Store) UpdateQueueEntry(entry QueueEntry) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(queueKey(entry.Seq), data)
	})
}

// DeleteQueueEntry removes the entry with seq.
func (s *Store) DeleteQueueEntry(seq uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(queueKey(seq)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete queue entry: %w", err)
		}
		return nil
	})
}

// Queue returns all queued entries oldest first.
func (s *Store) Queue() ([]QueueEntry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var entries []QueueEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(queueKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry QueueEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("unmarshal queue entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// Cursor returns the last listing cursor applied, or "" if none.
func (s *Store) Cursor() (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	var cursor string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaCursor))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cursor = string(val)
			return nil
		})
	})
	return cursor, err
}

// SetCursor records the last listing cursor applied.
func (s *Store) SetCursor(cursor string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaCursor), []byte(cursor))
	})
}
