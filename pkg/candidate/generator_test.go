package candidate

import (
	"math"
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange(t *testing.T) {
	t.Run("bounded", func(t *testing.T) {
		r := Range{Start: 10, Step: 3, Limit: 5}
		assert.Equal(t, uint64(5), r.Len())
		assert.Equal(t, uint64(10), r.At(0))
		assert.Equal(t, uint64(22), r.At(4))
	})

	t.Run("unbounded stops before overflow", func(t *testing.T) {
		r := Range{Start: math.MaxUint64 - 10, Step: 5}
		assert.Equal(t, uint64(3), r.Len())
		assert.Equal(t, uint64(math.MaxUint64), r.At(2))
	})

	t.Run("full uint64 space", func(t *testing.T) {
		r := Range{Step: 1}
		assert.Equal(t, uint64(math.MaxUint64), r.Len())
	})

	t.Run("limit larger than space", func(t *testing.T) {
		r := Range{Start: math.MaxUint64 - 1, Step: 1, Limit: 100}
		assert.Equal(t, uint64(2), r.Len())
	})

	t.Run("zero step", func(t *testing.T) {
		r := Range{}
		assert.ErrorIs(t, r.Validate(), ErrZeroStep)
		assert.Equal(t, uint64(0), r.Len())
	})
}

func TestGenerator_NextBatch(t *testing.T) {
	t.Run("contiguous batches", func(t *testing.T) {
		gen := NewGenerator(Range{Step: 1, Limit: 10}, 0)

		b1, more := gen.NextBatch(4)
		assert.True(t, more)
		assert.Equal(t, uint64(0), b1.First)
		assert.Equal(t, 4, b1.Count)

		b2, more := gen.NextBatch(4)
		assert.True(t, more)
		assert.Equal(t, b1.End(), b2.First)

		b3, more := gen.NextBatch(4)
		assert.False(t, more, "space should be exhausted")
		assert.Equal(t, 2, b3.Count, "last batch is short")

		b4, more := gen.NextBatch(4)
		assert.False(t, more)
		assert.True(t, b4.Empty())

		assert.Equal(t, uint64(10), gen.Issued())
		assert.Equal(t, uint64(3), gen.Batches())
	})

	t.Run("exact fit reports exhaustion", func(t *testing.T) {
		gen := NewGenerator(Range{Step: 1, Limit: 8}, 0)
		_, more := gen.NextBatch(8)
		assert.False(t, more)
	})

	t.Run("offset", func(t *testing.T) {
		gen := NewGenerator(Range{Start: 100, Step: 2, Limit: 10}, 6)
		b, more := gen.NextBatch(100)
		assert.False(t, more)
		assert.Equal(t, 4, b.Count)
		assert.Equal(t, uint64(112), b.At(0))
		assert.Equal(t, uint64(118), b.At(3))
		assert.Equal(t, uint64(4), gen.Issued(), "issued counts from the offset")
		assert.Equal(t, uint64(10), gen.Cursor())
	})

	t.Run("offset past end", func(t *testing.T) {
		gen := NewGenerator(Range{Step: 1, Limit: 10}, 50)
		b, more := gen.NextBatch(1)
		assert.False(t, more)
		assert.True(t, b.Empty())
		assert.Equal(t, uint64(0), gen.Remaining())
	})

	t.Run("non-positive size issues nothing", func(t *testing.T) {
		gen := NewGenerator(Range{Step: 1, Limit: 10}, 0)
		b, more := gen.NextBatch(0)
		assert.True(t, more)
		assert.True(t, b.Empty())
		assert.Equal(t, uint64(0), gen.Issued())
	})

	t.Run("string", func(t *testing.T) {
		gen := NewGenerator(Range{Start: 5, Step: 5, Limit: 10}, 0)
		b, _ := gen.NextBatch(3)
		assert.Equal(t, "[5..15]", b.String())
		assert.Equal(t, "[empty]", Batch{}.String())
	})
}

// Concurrent callers must partition a prefix of the sequence: nothing issued
// twice, nothing inside the issued range skipped.
func TestGenerator_ConcurrentPartition(t *testing.T) {
	const (
		workers   = 8
		batchSize = 37
		limit     = 100_000
	)
	gen := NewGenerator(Range{Start: 1000, Step: 3, Limit: limit}, 0)

	var (
		mu   sync.Mutex
		seen = roaring64.New()
		dups int
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				b, more := gen.NextBatch(batchSize)
				mu.Lock()
				for i := 0; i < b.Count; i++ {
					if !seen.CheckedAdd(b.At(i)) {
						dups++
					}
				}
				mu.Unlock()
				if !more {
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Zero(t, dups, "candidate issued twice")
	assert.Equal(t, uint64(limit), seen.GetCardinality())
	assert.Equal(t, uint64(limit), gen.Issued())
	for i := uint64(0); i < limit; i++ {
		if !seen.Contains(1000 + 3*i) {
			t.Fatalf("candidate %d skipped", 1000+3*i)
		}
	}
}
