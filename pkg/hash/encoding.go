package hash

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrUnknownEncoding is returned by ParseEncoding for an unsupported name.
var ErrUnknownEncoding = errors.New("hash: unknown encoding")

// Encoding renders a digest as the text patterns are matched against.
type Encoding int

const (
	Hex Encoding = iota
	Base32
	Base64URL
)

var lowerBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

func (e Encoding) String() string {
	switch e {
	case Hex:
		return "hex"
	case Base32:
		return "base32"
	case Base64URL:
		return "base64url"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding maps a configuration name to an Encoding. The empty string
// selects Hex.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "hex":
		return Hex, nil
	case "base32":
		return Base32, nil
	case "base64url":
		return Base64URL, nil
	default:
		return Hex, fmt.Errorf("%w %q", ErrUnknownEncoding, name)
	}
}

// EncodeToString renders digest.
func (e Encoding) EncodeToString(digest []byte) string {
	switch e {
	case Base32:
		return lowerBase32.EncodeToString(digest)
	case Base64URL:
		return base64.RawURLEncoding.EncodeToString(digest)
	default:
		return hex.EncodeToString(digest)
	}
}
