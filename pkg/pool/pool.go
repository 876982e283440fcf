// Package pool provides buffer pooling for batch hashing to reduce allocations.
//
// Every batch a worker or device workgroup processes needs scratch space: an
// input buffer the candidate text is built in, a flat digest buffer the whole
// batch is written to, and a slice of results handed to the matcher. At tens of
// millions of candidates per second, allocating those per batch dominates GC
// time, so they are recycled through sync.Pool.
//
// Usage:
//
//	buf := pool.GetInputBuffer()
//	defer pool.PutInputBuffer(buf)
//
//	buf = hash.AppendInput(buf[:0], prefix, candidate)
package pool

import (
	"sync"

	"github.com/orneryd/fistulosum/pkg/hash"
)

// PoolConfig configures buffer pooling behavior.
//
// Fields:
//   - Enabled: Controls whether pooling is active (disable for debugging)
//   - MaxDigestBytes: Largest digest buffer kept in the pool
//   - MaxResults: Largest result slice kept in the pool
//
// Example:
//
//	pool.Configure(pool.PoolConfig{
//		Enabled:        true,
//		MaxDigestBytes: 8 << 20,
//		MaxResults:     1 << 16,
//	})
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxDigestBytes limits the capacity of pooled digest buffers
	MaxDigestBytes int

	// MaxResults limits the capacity of pooled result slices
	MaxResults int
}

var globalConfig = PoolConfig{
	Enabled:        true,
	MaxDigestBytes: 16 << 20,
	MaxResults:     1 << 18,
}

// Configure sets global pool configuration.
//
// Call once during start-up, before any search runs. Calling it again
// reinitializes all pools, dropping whatever they hold.
//
// Thread Safety:
//
//	Not thread-safe. Call only during initialization.
func Configure(config PoolConfig) {
	globalConfig = config
	initPools()
}

// Config returns the active pool configuration.
func Config() PoolConfig {
	return globalConfig
}

func initPools() {
	inputPool = sync.Pool{
		New: func() any {
			b := make([]byte, 0, 64)
			return &b
		},
	}
	digestPool = sync.Pool{
		New: func() any {
			b := make([]byte, 0, 4096)
			return &b
		},
	}
	resultPool = sync.Pool{
		New: func() any {
			r := make([]hash.Result, 0, 256)
			return &r
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Input Buffer Pool (per-candidate hash input)
// =============================================================================

var inputPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 64)
		return &b
	},
}

// GetInputBuffer returns an empty byte slice for building one hash input.
func GetInputBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 64)
	}
	return (*inputPool.Get().(*[]byte))[:0]
}

// PutInputBuffer returns an input buffer to the pool. Buffers that grew past
// 4KB (very long prefixes) are dropped.
func PutInputBuffer(buf []byte) {
	if !globalConfig.Enabled || cap(buf) > 4096 {
		return
	}
	buf = buf[:0]
	inputPool.Put(&buf)
}

// =============================================================================
// Digest Buffer Pool (flat batch output)
// =============================================================================

var digestPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// GetDigestBuffer returns a byte slice of length n for a flat batch of
// digests (count * digest size). The contents are unspecified.
//
// Example:
//
//	out := pool.GetDigestBuffer(batch.Count * transform.Size())
//	defer pool.PutDigestBuffer(out)
//	err := device.Dispatch(ctx, kernel, launch, out)
func GetDigestBuffer(n int) []byte {
	if !globalConfig.Enabled {
		return make([]byte, n)
	}
	b := *digestPool.Get().(*[]byte)
	if cap(b) < n {
		PutDigestBuffer(b)
		return make([]byte, n)
	}
	return b[:n]
}

// PutDigestBuffer returns a digest buffer to the pool. Buffers larger than
// MaxDigestBytes are left to the GC.
func PutDigestBuffer(buf []byte) {
	if !globalConfig.Enabled || cap(buf) > globalConfig.MaxDigestBytes {
		return
	}
	buf = buf[:0]
	digestPool.Put(&buf)
}

// =============================================================================
// Result Slice Pool (matcher input)
// =============================================================================

var resultPool = sync.Pool{
	New: func() any {
		r := make([]hash.Result, 0, 256)
		return &r
	},
}

// GetResultSlice returns an empty result slice.
func GetResultSlice() []hash.Result {
	if !globalConfig.Enabled {
		return make([]hash.Result, 0, 256)
	}
	return (*resultPool.Get().(*[]hash.Result))[:0]
}

// PutResultSlice clears the slice, so digests it references can be collected,
// and returns it to the pool.
func PutResultSlice(results []hash.Result) {
	if !globalConfig.Enabled || cap(results) > globalConfig.MaxResults {
		return
	}
	clear(results)
	results = results[:0]
	resultPool.Put(&results)
}
