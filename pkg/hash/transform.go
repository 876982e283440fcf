// Package hash holds the pluggable transforms a search applies to each
// candidate, and the text encodings pattern matching runs against.
//
// Every Transform is stateless: Sum may be called from any number of
// goroutines at once.
package hash

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// ErrUnknownTransform is returned by Lookup for an unregistered name.
var ErrUnknownTransform = errors.New("hash: unknown transform")

// Transform maps a candidate's input bytes to a digest.
type Transform interface {
	// Name is the registry name, e.g. "sha256".
	Name() string
	// Size is the digest length in bytes.
	Size() int
	// Sum appends the digest of input to dst and returns the result.
	Sum(dst, input []byte) []byte
}

type funcTransform struct {
	name string
	size int
	sum  func(dst, input []byte) []byte
}

func (f funcTransform) Name() string                 { return f.name }
func (f funcTransform) Size() int                    { return f.size }
func (f funcTransform) Sum(dst, input []byte) []byte { return f.sum(dst, input) }

// New wraps a digest function as a Transform. Used for custom transforms
// and test doubles.
func New(name string, size int, sum func(dst, input []byte) []byte) Transform {
	return funcTransform{name: name, size: size, sum: sum}
}

var registry = map[string]Transform{}

func register(t Transform) {
	registry[t.Name()] = t
}

func init() {
	register(New("sha256", sha256.Size, func(dst, in []byte) []byte {
		s := sha256.Sum256(in)
		return append(dst, s[:]...)
	}))
	register(New("sha512", sha512.Size, func(dst, in []byte) []byte {
		s := sha512.Sum512(in)
		return append(dst, s[:]...)
	}))
	register(New("sha3-256", 32, func(dst, in []byte) []byte {
		s := sha3.Sum256(in)
		return append(dst, s[:]...)
	}))
	register(New("keccak256", 32, func(dst, in []byte) []byte {
		h := sha3.NewLegacyKeccak256()
		h.Write(in)
		return h.Sum(dst)
	}))
	register(New("blake2b-256", blake2b.Size256, func(dst, in []byte) []byte {
		s := blake2b.Sum256(in)
		return append(dst, s[:]...)
	}))
	register(New("blake2s-256", blake2s.Size, func(dst, in []byte) []byte {
		s := blake2s.Sum256(in)
		return append(dst, s[:]...)
	}))
	register(New("murmur3-128", 16, func(dst, in []byte) []byte {
		h1, h2 := murmur3.Sum128(in)
		dst = binary.BigEndian.AppendUint64(dst, h1)
		return binary.BigEndian.AppendUint64(dst, h2)
	}))
	register(New("xxh64", 8, func(dst, in []byte) []byte {
		return binary.BigEndian.AppendUint64(dst, xxhash.Sum64(in))
	}))
}

// Default is the transform used when none is configured.
const Default = "sha256"

// Lookup returns the registered transform called name.
func Lookup(name string) (Transform, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownTransform, name, Names())
	}
	return t, nil
}

// Names lists the registered transforms in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AppendInput appends the hash input for candidate c: prefix followed by the
// decimal form of c.
func AppendInput(dst, prefix []byte, c uint64) []byte {
	dst = append(dst, prefix...)
	return strconv.AppendUint(dst, c, 10)
}

// Result pairs a candidate with its digest and the digest's text form.
type Result struct {
	Candidate uint64
	Digest    []byte
	Text      string
}
