/*
Package rand defines methods of obtaining cryptographically secure random
number generators wrapped in the standard math/rand API.

Use NewGenerator whenever the random value ends up in a protocol artifact
(authentication nonces, proposal identifiers). The deterministic variant
exists for tests and simulations only.
*/
package rand

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"time"
)

type source struct{}

var _ mrand.Source64 = (*source)(nil)

// Seed does nothing when crypto/rand is used as a source.
func (_ *source) Seed(_ int64) {}

// Int63 returns a uniformly distributed random int64 value in [0, 1<<63).
// Panics if the underlying reader cannot return data.
func (s *source) Int63() int64 {
	return int64(s.Uint64() & ^uint64(1<<63))
}

// Uint64 returns a uniformly distributed random uint64 value.
// Panics if the underlying reader cannot return data.
func (_ *source) Uint64() (val uint64) {
	if err := binary.Read(rand.Reader, binary.BigEndian, &val); err != nil {
		panic(err)
	}
	return
}

// NewGenerator returns a generator backed by crypto/rand. Performance takes
// a hit compared to the seeded generator, so use it where security matters
// and nowhere else.
func NewGenerator() *mrand.Rand {
	return mrand.New(&source{}) // #nosec G404 -- crypto/rand backed
}

// NewDeterministicGenerator returns a time-seeded generator with no
// security guarantees. Never use it for nonces or identifiers.
func NewDeterministicGenerator() *mrand.Rand {
	randGen := mrand.NewSource(time.Now().UnixNano())
	return mrand.New(randGen) // #nosec G404 -- test use only
}
