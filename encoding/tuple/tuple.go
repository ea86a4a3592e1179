// Package tuple implements the canonical byte encoding behind every hash
// in the protocol. The rules are fixed: variable-width fields (strings,
// canonical JSON) carry a 4-byte big-endian length prefix, unsigned
// integers are 8-byte big-endian, and fixed-width values (32-byte digests,
// 16-byte nonces) are appended raw. Domain separation tags such as
// "COMMIT" or "LEAF" are encoded as ordinary strings.
//
// The encoding must stay byte-stable across releases. Commitments, Merkle
// roots and replay keys derived from it are persisted and anchored
// on-chain, so any change here invalidates existing records.
package tuple

import (
	"encoding/binary"

	"github.com/zkiotchain/zkiot/crypto/hash"
)

// Builder accumulates encoded fields in call order.
type Builder struct {
	buf []byte
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{buf: make([]byte, 0, 64)}
}

// Str appends a length-prefixed string field.
func (b *Builder) Str(s string) *Builder {
	b.buf = appendLen(b.buf, len(s))
	b.buf = append(b.buf, s...)
	return b
}

// Bytes appends a length-prefixed variable-width byte field.
func (b *Builder) Bytes(p []byte) *Builder {
	b.buf = appendLen(b.buf, len(p))
	b.buf = append(b.buf, p...)
	return b
}

// Bytes32 appends a 32-byte value raw.
func (b *Builder) Bytes32(v [32]byte) *Builder {
	b.buf = append(b.buf, v[:]...)
	return b
}

// Bytes16 appends a 16-byte value raw.
func (b *Builder) Bytes16(v [16]byte) *Builder {
	b.buf = append(b.buf, v[:]...)
	return b
}

// Uint64 appends an 8-byte big-endian integer.
func (b *Builder) Uint64(v uint64) *Builder {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], v)
	b.buf = append(b.buf, be[:]...)
	return b
}

// Encode returns the accumulated bytes.
func (b *Builder) Encode() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Hash returns the keccak-256 digest of the accumulated bytes.
func (b *Builder) Hash() [32]byte {
	return hash.Hash(b.buf)
}

func appendLen(buf []byte, n int) []byte {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(n))
	return append(buf, be[:]...)
}
