package pool

import (
	"testing"

	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	orig := Config()
	defer Configure(orig)

	Configure(PoolConfig{Enabled: false})
	assert.False(t, IsEnabled())

	Configure(PoolConfig{Enabled: true, MaxDigestBytes: 1024, MaxResults: 16})
	assert.True(t, IsEnabled())
	assert.Equal(t, 1024, Config().MaxDigestBytes)
}

func TestInputBuffer(t *testing.T) {
	buf := GetInputBuffer()
	assert.Len(t, buf, 0)
	buf = hash.AppendInput(buf, []byte("p"), 7)
	assert.Equal(t, "p7", string(buf))
	PutInputBuffer(buf)

	again := GetInputBuffer()
	assert.Len(t, again, 0, "pooled buffers come back empty")
	PutInputBuffer(again)
}

func TestDigestBuffer(t *testing.T) {
	t.Run("length as requested", func(t *testing.T) {
		b := GetDigestBuffer(32 * 100)
		assert.Len(t, b, 3200)
		PutDigestBuffer(b)

		small := GetDigestBuffer(10)
		assert.Len(t, small, 10)
		PutDigestBuffer(small)
	})

	t.Run("oversized buffers are not pooled", func(t *testing.T) {
		orig := Config()
		defer Configure(orig)
		Configure(PoolConfig{Enabled: true, MaxDigestBytes: 64, MaxResults: 16})

		big := GetDigestBuffer(128)
		PutDigestBuffer(big)
		assert.Len(t, GetDigestBuffer(8), 8)
	})

	t.Run("undersized buffer stays pooled", func(t *testing.T) {
		recycled := 0
		for i := 0; i < 50; i++ {
			small := GetDigestBuffer(16)
			small[0] = 0xAB
			marker := &small[0]
			PutDigestBuffer(small)

			large := GetDigestBuffer(1 << 20)
			assert.Len(t, large, 1<<20)
			assert.NotSame(t, marker, &large[0])

			again := GetDigestBuffer(16)
			if &again[0] == marker {
				recycled++
			}
			PutDigestBuffer(again)
		}
		// sync.Pool may drop items at any time; one reuse is enough to show
		// the small buffer was put back rather than discarded.
		assert.Greater(t, recycled, 0)
	})

	t.Run("disabled allocates fresh", func(t *testing.T) {
		orig := Config()
		defer Configure(orig)
		Configure(PoolConfig{Enabled: false})

		b := GetDigestBuffer(16)
		assert.Len(t, b, 16)
		PutDigestBuffer(b)
	})
}

func TestResultSlice(t *testing.T) {
	rs := GetResultSlice()
	assert.Len(t, rs, 0)
	rs = append(rs, hash.Result{Candidate: 1, Digest: []byte{1}, Text: "01"})
	PutResultSlice(rs)
	assert.Nil(t, rs[0].Digest, "references are cleared on return")

	again := GetResultSlice()
	assert.Len(t, again, 0)
}
