// Package storage persists search runs, their matches and per-space
// checkpoints.
//
// Two engines implement Store:
//   - BadgerStore: BadgerDB, on disk or in memory (NewMemoryStore, for tests)
//   - BoltStore: bbolt, a single file
//
// A checkpoint is the generator cursor at the end of a cleanly finished run,
// keyed by SpaceKey so it is only ever applied to the same candidate space.
//
// Example Usage:
//
//	store, err := storage.Open("badger", "/var/lib/fistulosum")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key := storage.SpaceKey("sha256", "seed-", 0, 1)
//	offset, _, err := store.Checkpoint(key)
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Errors
var (
	ErrNotFound      = errors.New("storage: not found")
	ErrUnknownDriver = errors.New("storage: unknown driver")
	ErrInvalidRun    = errors.New("storage: run has no id")
	ErrClosed        = errors.New("storage: store closed")
)

// MatchRecord is a persisted match.
type MatchRecord struct {
	Candidate uint64
	Input     string
	Text      string
	Pattern   string
	Worker    int
}

// RunRecord is a persisted run.
type RunRecord struct {
	ID       string
	Started  time.Time
	Elapsed  time.Duration
	Status   string
	Hash     string
	Prefix   string
	Patterns []string
	SpaceKey string
	Issued   uint64
	Cursor   uint64
	Matches  []MatchRecord
}

// Store is implemented by every engine. All methods are safe for concurrent
// use.
type Store interface {
	// SaveRun writes r, replacing a run with the same ID.
	SaveRun(r *RunRecord) error
	// Runs returns every run, oldest first, without their matches.
	Runs() ([]*RunRecord, error)
	// Run returns one run with its matches.
	Run(id string) (*RunRecord, error)
	// Matches returns the matches of run id.
	Matches(id string) ([]MatchRecord, error)
	// Checkpoint returns the cursor saved for space, and whether one exists.
	Checkpoint(space string) (uint64, bool, error)
	SetCheckpoint(space string, cursor uint64) error
	Close() error
}

// Open returns the store for driver at path. Driver "memory" ignores path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "badger", "":
		return NewBadgerStore(path)
	case "bolt", "bbolt":
		return NewBoltStore(path)
	case "memory":
		return NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// SpaceKey fingerprints a candidate space: the transform, the input prefix,
// and the start and step of the range. Runs with equal keys hash the same
// inputs in the same order.
func SpaceKey(transform, prefix string, start, step uint64) string {
	d := xxhash.New()
	_, _ = d.WriteString(transform)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(prefix)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatUint(start, 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatUint(step, 10))
	return fmt.Sprintf("%s-%016x", transform, d.Sum64())
}

// runKey orders runs by start time, then id.
func runKey(prefix []byte, r *RunRecord) []byte {
	k := make([]byte, 0, len(prefix)+8+len(r.ID))
	k = append(k, prefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(r.Started.UnixNano()))
	return append(k, r.ID...)
}

func encodeCursor(c uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, c)
}

func decodeCursor(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("storage: corrupt checkpoint (%d bytes)", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
