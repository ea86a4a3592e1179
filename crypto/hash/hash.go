// Package hash provides the keccak-256 digest used by every hashed
// structure in the system: commitments, challenges, Merkle leaves and
// nodes, and replay cache keys.
package hash

import (
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

var keccak256Pool = sync.Pool{New: func() interface{} {
	return sha3.NewLegacyKeccak256()
}}

// Hash returns the keccak-256 digest of data.
func Hash(data []byte) [32]byte {
	h, ok := keccak256Pool.Get().(hash.Hash)
	if !ok {
		h = sha3.NewLegacyKeccak256()
	}
	defer keccak256Pool.Put(h)
	h.Reset()

	var b [32]byte
	// The hash interface never returns an error, for that reason
	// we are not handling the error below.
	_, _ = h.Write(data)
	h.Sum(b[:0])

	return b
}

// Concat hashes the concatenation of the given byte slices. It avoids an
// intermediate allocation for the common two-operand case.
func Concat(parts ...[]byte) [32]byte {
	h, ok := keccak256Pool.Get().(hash.Hash)
	if !ok {
		h = sha3.NewLegacyKeccak256()
	}
	defer keccak256Pool.Put(h)
	h.Reset()

	var b [32]byte
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	h.Sum(b[:0])

	return b
}
