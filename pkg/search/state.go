package search

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/orneryd/fistulosum/pkg/candidate"
)

// StopReason records why the cancellation flag was set.
type StopReason int32

const (
	StopNone StopReason = iota
	StopTargetReached
	StopExhausted
	StopInterrupted
	StopAborted
)

func (r StopReason) String() string {
	switch r {
	case StopTargetReached:
		return "target reached"
	case StopExhausted:
		return "exhausted"
	case StopInterrupted:
		return "interrupted"
	case StopAborted:
		return "aborted"
	default:
		return "none"
	}
}

// SearchState is shared by pointer with every worker of one run: the
// candidate generator, the cancellation flag and the match reservations.
type SearchState struct {
	gen    *candidate.Generator
	target int64

	reserved     atomic.Int64
	reason       atomic.Int32
	issuedAtStop atomic.Uint64
	dropped      atomic.Uint64

	stopped context.Context
	stop    context.CancelFunc
}

// NewSearchState returns the state for a run that stops after target
// matches.
func NewSearchState(gen *candidate.Generator, target int) *SearchState {
	s := &SearchState{gen: gen, target: int64(target)}
	s.dropped.Store(math.MaxUint64)
	s.stopped, s.stop = context.WithCancel(context.Background())
	return s
}

// Generator returns the run's candidate generator.
func (s *SearchState) Generator() *candidate.Generator { return s.gen }

// NextBatch hands out the next batch of at most size candidates.
func (s *SearchState) NextBatch(size int) (candidate.Batch, bool) {
	return s.gen.NextBatch(size)
}

// Cancel sets the cancellation flag. Only the first call records its reason
// and the number of candidates issued at that moment; it reports whether it
// was that call.
func (s *SearchState) Cancel(reason StopReason) bool {
	if !s.reason.CompareAndSwap(int32(StopNone), int32(reason)) {
		return false
	}
	s.issuedAtStop.Store(s.gen.Issued())
	s.stop()
	return true
}

// Stopped returns a context that is done once the flag is set.
func (s *SearchState) Stopped() context.Context {
	return s.stopped
}

// Cancelled reports whether the flag is set.
func (s *SearchState) Cancelled() bool {
	return s.reason.Load() != int32(StopNone)
}

// Reason returns why the run stopped, or StopNone.
func (s *SearchState) Reason() StopReason {
	return StopReason(s.reason.Load())
}

// IssuedAtStop is Issued() at the moment the flag was set.
func (s *SearchState) IssuedAtStop() uint64 {
	return s.issuedAtStop.Load()
}

// Reserve claims one of the target match slots. The claim that fills the
// last slot sets the flag. Once all slots are taken Reserve returns false
// and the match must be dropped.
func (s *SearchState) Reserve() bool {
	n := s.reserved.Add(1)
	if n > s.target {
		return false
	}
	if n == s.target {
		s.Cancel(StopTargetReached)
	}
	return true
}

// Reserved returns the number of granted reservations.
func (s *SearchState) Reserved() int {
	return int(min(s.reserved.Load(), s.target))
}

// Drop records that the candidate at sequence index seq matched after every
// slot was taken, so it was not reported.
func (s *SearchState) Drop(seq uint64) {
	for {
		cur := s.dropped.Load()
		if seq >= cur || s.dropped.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// ResumeAt returns the sequence index a later run must start at so that no
// match is skipped: the generator cursor, or the first dropped match if
// that comes earlier.
func (s *SearchState) ResumeAt() uint64 {
	return min(s.gen.Cursor(), s.dropped.Load())
}
