// Package zkp implements the commitment-based device identification
// protocol. It is not a general purpose zk-SNARK: the SIMPLE scheme is a
// keccak commitment check with timestamp binding and replay detection.
// SNARK and STARK are declared as named strategies for future back-ends
// and are not implemented.
package zkp

import (
	"github.com/zkiotchain/zkiot/crypto/hash"
	"github.com/zkiotchain/zkiot/encoding/tuple"
)

// SchemeName identifies a proof scheme strategy.
type SchemeName string

const (
	// SchemeSimple is the commitment-based scheme defined in this package.
	SchemeSimple SchemeName = "SIMPLE"
	// SchemeSnark names a future zk-SNARK back-end.
	SchemeSnark SchemeName = "SNARK"
	// SchemeStark names a future zk-STARK back-end.
	SchemeStark SchemeName = "STARK"
)

// NonceLength is the byte length of authentication nonces.
const NonceLength = 16

// Proof is one authentication attempt. Commitment carries the prover's
// secret hash, from which the registered commitment is recomputed during
// verification. The secret itself never crosses the wire or the store.
type Proof struct {
	Scheme     SchemeName
	DeviceID   string
	Commitment [32]byte
	Response   [32]byte
	Nonce      [16]byte
	Timestamp  uint64
}

// SecretHash derives the keccak-256 key image of a device secret. This
// is the only form of the secret the verifier ever handles. A single
// value hashes plain; the length-prefixed tuple encoding applies only to
// multi-field digests.
func SecretHash(secret []byte) [32]byte {
	return hash.Hash(secret)
}

// Commitment computes the registration commitment bound to a device
// identity and its secret hash.
func Commitment(deviceID string, secretHash [32]byte) [32]byte {
	return tuple.New().Str("COMMIT").Str(deviceID).Bytes32(secretHash).Hash()
}

// Challenge derives the time-bound challenge for one attempt.
func Challenge(deviceID string, nonce [16]byte, timestamp uint64) [32]byte {
	return tuple.New().Str("CHAL").Str(deviceID).Bytes16(nonce).Uint64(timestamp).Hash()
}

// Response binds a secret hash to a challenge.
func Response(secretHash, challenge [32]byte) [32]byte {
	return tuple.New().Bytes32(secretHash).Bytes32(challenge).Hash()
}

// ReplayKey is the cache key recorded for one verified attempt.
func ReplayKey(deviceID string, nonce [16]byte, timestamp uint64) [32]byte {
	return tuple.New().Str(deviceID).Bytes16(nonce).Uint64(timestamp).Hash()
}
