package storage

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engines(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			s, err := NewMemoryStore()
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := Open("badger", t.TempDir())
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) Store {
			s, err := Open("bolt", filepath.Join(t.TempDir(), "runs.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func sampleRun(id string, started time.Time) *RunRecord {
	return &RunRecord{
		ID:       id,
		Started:  started,
		Elapsed:  1500 * time.Millisecond,
		Status:   "target_reached",
		Hash:     "sha256",
		Prefix:   "seed-",
		Patterns: []string{"^0000"},
		SpaceKey: SpaceKey("sha256", "seed-", 0, 1),
		Issued:   1 << 20,
		Cursor:   1 << 20,
		Matches: []MatchRecord{
			{Candidate: 18446744073709551000, Input: "seed-18446744073709551000", Text: "0000ab", Pattern: "^0000", Worker: 3},
		},
	}
}

func TestStore_RunRoundTrip(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			second := sampleRun(NewRunID(), base.Add(time.Minute))
			first := sampleRun(NewRunID(), base)
			require.NoError(t, s.SaveRun(second))
			require.NoError(t, s.SaveRun(first))

			runs, err := s.Runs()
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, first.ID, runs[0].ID, "oldest first")
			assert.Equal(t, second.ID, runs[1].ID)
			assert.Nil(t, runs[0].Matches, "listing omits matches")
			assert.Equal(t, first.Issued, runs[0].Issued)

			got, err := s.Run(first.ID)
			require.NoError(t, err)
			assert.Equal(t, first.Matches, got.Matches)
			assert.Equal(t, first.Elapsed, got.Elapsed)
			assert.True(t, first.Started.Equal(got.Started))

			matches, err := s.Matches(second.ID)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, uint64(18446744073709551000), matches[0].Candidate)
		})
	}
}

func TestStore_SaveRunReplaces(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			r := sampleRun(NewRunID(), time.Now())
			require.NoError(t, s.SaveRun(r))
			r.Status = "interrupted"
			r.Started = r.Started.Add(time.Second)
			require.NoError(t, s.SaveRun(r))

			runs, err := s.Runs()
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, "interrupted", runs[0].Status)
		})
	}
}

func TestStore_Errors(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			_, err := s.Run(uuid.NewString())
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Matches("missing")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.SaveRun(&RunRecord{}), ErrInvalidRun)

			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			_, err = s.Runs()
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.SetCheckpoint("k", 1), ErrClosed)
		})
	}
}

func TestStore_Checkpoints(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			key := SpaceKey("sha256", "", 0, 1)
			_, ok, err := s.Checkpoint(key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetCheckpoint(key, 4096))
			require.NoError(t, s.SetCheckpoint(key, 8192))
			c, ok, err := s.Checkpoint(key)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint64(8192), c)

			_, ok, err = s.Checkpoint(SpaceKey("sha256", "", 0, 2))
			require.NoError(t, err)
			assert.False(t, ok, "other spaces have their own checkpoint")
		})
	}
}

func TestStore_Reopen(t *testing.T) {
	t.Run("badger", func(t *testing.T) {
		dir := t.TempDir()
		s, err := NewBadgerStore(dir)
		require.NoError(t, err)
		require.NoError(t, s.SetCheckpoint("space", 77))
		require.NoError(t, s.Close())

		s, err = NewBadgerStore(dir)
		require.NoError(t, err)
		defer s.Close()
		c, ok, err := s.Checkpoint("space")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(77), c)
	})

	t.Run("bolt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runs.db")
		s, err := NewBoltStore(path)
		require.NoError(t, err)
		require.NoError(t, s.SetCheckpoint("space", 77))
		require.NoError(t, s.Close())

		s, err = NewBoltStore(path)
		require.NoError(t, err)
		defer s.Close()
		c, ok, err := s.Checkpoint("space")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(77), c)
	})
}

func TestSpaceKey(t *testing.T) {
	k := SpaceKey("sha256", "seed", 0, 1)
	assert.True(t, strings.HasPrefix(k, "sha256-"))
	assert.Equal(t, k, SpaceKey("sha256", "seed", 0, 1))

	others := []string{
		SpaceKey("sha512", "seed", 0, 1),
		SpaceKey("sha256", "seed2", 0, 1),
		SpaceKey("sha256", "seed", 1, 1),
		SpaceKey("sha256", "seed", 0, 2),
		SpaceKey("sha256", "see", 0, 1),
	}
	for _, o := range others {
		assert.NotEqual(t, k, o)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewRunID())
}
