package storage

import (
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketRuns        = []byte("runs")
	bucketIndex       = []byte("index")
	bucketCheckpoints = []byte("checkpoints")
)

// BoltStore keeps runs and checkpoints in a single bbolt file.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	closed bool
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	opts := &bbolt.Options{
		Timeout:      1 * time.Second,
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketIndex, bucketCheckpoints} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// SaveRun writes r and its index entry in one transaction.
func (s *BoltStore) SaveRun(r *RunRecord) error {
	if r.ID == "" {
		return ErrInvalidRun
	}
	data, err := serializeRun(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		index := tx.Bucket(bucketIndex)
		if old := index.Get([]byte(r.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		key := runKey(nil, r)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(r.ID), key)
	})
}

// Runs returns every run ordered by start time.
func (s *BoltStore) Runs() ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var runs []*RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			r, err := deserializeRun(v)
			if err != nil {
				return err
			}
			runs = append(runs, summary(r))
			return nil
		})
	})
	return runs, err
}

// Run returns run id.
func (s *BoltStore) Run(id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out *RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketIndex).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		val := tx.Bucket(bucketRuns).Get(key)
		if val == nil {
			return fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		var err error
		out, err = deserializeRun(val)
		return err
	})
	return out, err
}

// Matches returns the matches of run id.
func (s *BoltStore) Matches(id string) ([]MatchRecord, error) {
	r, err := s.Run(id)
	if err != nil {
		return nil, err
	}
	return r.Matches, nil
}

// Checkpoint returns the cursor saved for space.
func (s *BoltStore) Checkpoint(space string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}

	var (
		cursor uint64
		found  bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketCheckpoints).Get([]byte(space))
		if val == nil {
			return nil
		}
		var err error
		cursor, err = decodeCursor(val)
		found = err == nil
		return err
	})
	return cursor, found, err
}

// SetCheckpoint saves cursor for space.
func (s *BoltStore) SetCheckpoint(space string, cursor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put([]byte(space), encodeCursor(cursor))
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
