package hash

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	vectors := []struct {
		name  string
		input string
		want  string
	}{
		{"sha256", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha3-256", "", "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
		{"keccak256", "", "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"blake2b-256", "", "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"},
		{"xxh64", "", "ef46db3751d8e999"},
	}

	for _, tt := range vectors {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Lookup(tt.name)
			require.NoError(t, err)
			got := tr.Sum(nil, []byte(tt.input))
			assert.Equal(t, tt.want, hex.EncodeToString(got))
			assert.Len(t, got, tr.Size())
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := Lookup("md4")
		assert.ErrorIs(t, err, ErrUnknownTransform)
	})
}

func TestTransforms_SizeAndAppend(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			tr, err := Lookup(name)
			require.NoError(t, err)

			prefix := []byte{0xAA, 0xBB}
			out := tr.Sum(prefix, []byte("candidate"))
			assert.Len(t, out, 2+tr.Size())
			assert.Equal(t, []byte{0xAA, 0xBB}, out[:2], "Sum must append")

			again := tr.Sum(nil, []byte("candidate"))
			assert.Equal(t, out[2:], again, "transform must be deterministic")
		})
	}
}

func TestTransforms_ConcurrentSum(t *testing.T) {
	tr, err := Lookup("keccak256")
	require.NoError(t, err)
	want := tr.Sum(nil, []byte("x"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.Equal(t, want, tr.Sum(nil, []byte("x")))
			}
		}()
	}
	wg.Wait()
}

func TestAppendInput(t *testing.T) {
	assert.Equal(t, "42", string(AppendInput(nil, nil, 42)))
	assert.Equal(t, "seed-0", string(AppendInput(nil, []byte("seed-"), 0)))
	assert.Equal(t, "x:18446744073709551615", string(AppendInput([]byte("x:"), nil, ^uint64(0))))
}

func TestEncoding(t *testing.T) {
	digest := []byte{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		name string
		want string
	}{
		{"hex", "deadbeef"},
		{"base32", "32w353y"},
		{"base64url", "3q2-7w"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := ParseEncoding(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, enc.String())
			assert.Equal(t, tt.want, enc.EncodeToString(digest))
		})
	}

	t.Run("default is hex", func(t *testing.T) {
		enc, err := ParseEncoding("")
		require.NoError(t, err)
		assert.Equal(t, Hex, enc)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseEncoding("base58")
		assert.ErrorIs(t, err, ErrUnknownEncoding)
	})
}
