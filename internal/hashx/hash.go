// Package hashx defines the content digest used to address blobs and
// helpers to convert between its binary and hex forms.
package hashx

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Size is the length of a blob digest in bytes (SHA-512).
const Size = sha512.Size

// Hash is a fixed-length content digest addressing a blob by its bytes.
type Hash [Size]byte

// Empty is the digest of the virtual empty blob.
//
// It is not the actual SHA-512 hash of zero bytes; for simplicity the
// all-zero value is reserved as the address of the empty blob. The empty
// blob is never physically stored and is considered to have always existed.
var Empty = Hash{}

// Sum computes the digest of data.
func Sum(data []byte) Hash {
	return sha512.Sum512(data)
}

// IsEmpty reports whether h is the reserved empty-blob digest.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

// Hex returns the lowercase hex encoding of h, which is also the
// permanent object-store key for the blob.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Slice returns h as a byte slice, for passing to database drivers.
func (h Hash) Slice() []byte {
	return h[:]
}

// FromSlice converts a raw digest value read from the database.
func FromSlice(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("invalid digest length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FromHex parses a lowercase-hex digest, e.g. from a request path.
func FromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid digest encoding: %w", err)
	}
	return FromSlice(b)
}
