package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

var (
	badgerRunPrefix        = []byte("run/")
	badgerIndexPrefix      = []byte("idx/")
	badgerCheckpointPrefix = []byte("cp/")
)

// BadgerStore keeps runs and checkpoints in BadgerDB.
type BadgerStore struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// NewBadgerStore opens (or creates) a store in directory path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path)).WithLoggingLevel(badger.WARNING)
	return openBadger(opts)
}

// NewBadgerStoreInMemory creates a store that lives only in memory.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(prefix []byte, rest ...byte) []byte {
	return append(append([]byte(nil), prefix...), rest...)
}

// SaveRun writes r and its index entry in one transaction.
func (s *BadgerStore) SaveRun(r *RunRecord) error {
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

	return s.db.Update(func(txn *badger.Txn) error {
		idx := badgerKey(badgerIndexPrefix, []byte(r.ID)...)
		item, err := txn.Get(idx)
		switch {
		case err == nil:
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(old); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		key := runKey(badgerRunPrefix, r)
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idx, key)
	})
}

// Runs returns every run ordered by start time.
func (s *BadgerStore) Runs() ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var runs []*RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.Prefix = badgerRunPrefix
		it := txn.NewIterator(opt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			r, err := deserializeRun(val)
			if err != nil {
				return err
			}
			runs = append(runs, summary(r))
		}
		return nil
	})
	return runs, err
}

// Run returns run id.
func (s *BadgerStore) Run(id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out *RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(badgerIndexPrefix, []byte(id)...))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out, err = deserializeRun(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return out, err
}

// Matches returns the matches of run id.
func (s *BadgerStore) Matches(id string) ([]MatchRecord, error) {
	r, err := s.Run(id)
	if err != nil {
		return nil, err
	}
	return r.Matches, nil
}

// Checkpoint returns the cursor saved for space.
func (s *BadgerStore) Checkpoint(space string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}

	var cursor uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(badgerCheckpointPrefix, []byte(space)...))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cursor, err = decodeCursor(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cursor, true, nil
}

// SetCheckpoint saves cursor for space.
func (s *BadgerStore) SetCheckpoint(space string, cursor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(badgerCheckpointPrefix, []byte(space)...), encodeCursor(cursor))
	})
}

// Close closes the database. Further calls fail with ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
