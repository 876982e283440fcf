// Package candidate produces the sequence of inputs a search hashes.
//
// The sequence is a Range (start offset + step, optionally bounded) walked by
// a single cursor. Workers take contiguous Batches off the cursor; the cursor
// advance is serialized so batches never overlap and no candidate in an
// issued range is skipped.
//
// Example:
//
//	gen := candidate.NewGenerator(candidate.Range{Step: 1, Limit: 1000}, 0)
//	for {
//		batch, more := gen.NextBatch(256)
//		for i := 0; i < batch.Count; i++ {
//			hashIt(batch.At(i))
//		}
//		if !more {
//			break
//		}
//	}
package candidate

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrZeroStep is returned by Range.Validate for a range that cannot advance.
var ErrZeroStep = errors.New("candidate: step must be positive")

// Range describes the candidate sequence: element i is Start + i*Step.
// Limit bounds the number of elements; 0 means unbounded, in which case the
// sequence ends only when the next element would overflow uint64.
type Range struct {
	Start uint64
	Step  uint64
	Limit uint64
}

// Validate checks that the range can be walked.
func (r Range) Validate() error {
	if r.Step == 0 {
		return ErrZeroStep
	}
	return nil
}

// Len returns the number of elements in the range. Unbounded ranges report
// the number of elements before uint64 overflow.
func (r Range) Len() uint64 {
	if r.Step == 0 {
		return 0
	}
	n := (math.MaxUint64 - r.Start) / r.Step
	if n < math.MaxUint64 {
		n++
	}
	if r.Limit == 0 || r.Limit > n {
		return n
	}
	return r.Limit
}

// At returns element i of the range. The caller guarantees i < Len().
func (r Range) At(i uint64) uint64 {
	return r.Start + i*r.Step
}

// Batch is a contiguous run of the sequence owned by one worker.
type Batch struct {
	Range Range
	First uint64 // sequence index of the first candidate
	Count int
}

// At returns the i-th candidate of the batch.
func (b Batch) At(i int) uint64 {
	return b.Range.At(b.First + uint64(i))
}

// End returns the sequence index one past the last candidate.
func (b Batch) End() uint64 {
	return b.First + uint64(b.Count)
}

// Empty reports whether the batch has no candidates.
func (b Batch) Empty() bool {
	return b.Count == 0
}

func (b Batch) String() string {
	if b.Count == 0 {
		return "[empty]"
	}
	return fmt.Sprintf("[%d..%d]", b.At(0), b.At(b.Count-1))
}

// Generator hands out non-overlapping batches of a Range.
type Generator struct {
	rng Range
	len uint64

	mu      sync.Mutex
	cursor  uint64
	offset  uint64
	batches uint64
}

// NewGenerator creates a generator whose cursor starts at sequence index
// offset. An offset past the end yields an already-exhausted generator.
func NewGenerator(rng Range, offset uint64) *Generator {
	n := rng.Len()
	if offset > n {
		offset = n
	}
	return &Generator{rng: rng, len: n, cursor: offset, offset: offset}
}

// Range returns the range being walked.
func (g *Generator) Range() Range {
	return g.rng
}

// NextBatch returns the next size unissued candidates. The second result is
// false once the range is exhausted; the batch returned alongside it may be
// short or empty.
func (g *Generator) NextBatch(size int) (Batch, bool) {
	if size <= 0 {
		return Batch{Range: g.rng}, g.Remaining() > 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	left := g.len - g.cursor
	n := uint64(size)
	if n > left {
		n = left
	}
	b := Batch{Range: g.rng, First: g.cursor, Count: int(n)}
	g.cursor += n
	if n > 0 {
		g.batches++
	}
	return b, g.cursor < g.len
}

// Cursor returns the sequence index of the next unissued candidate.
func (g *Generator) Cursor() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

// Issued returns how many candidates this generator has handed out.
func (g *Generator) Issued() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor - g.offset
}

// Batches returns how many non-empty batches have been handed out.
func (g *Generator) Batches() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.batches
}

// Remaining returns how many candidates are left. Unbounded ranges report
// the distance to uint64 overflow.
func (g *Generator) Remaining() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.len - g.cursor
}
