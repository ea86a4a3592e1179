// Package bytesutil defines helper methods for converting between byte
// slices, fixed-width arrays and integers.
package bytesutil

import (
	"encoding/hex"
)

// ToBytes32 is a convenience method for converting a byte slice to a fixed
// size 32 byte array. This method will truncate the input if it is larger
// than 32 bytes.
func ToBytes32(x []byte) [32]byte {
	var y [32]byte
	copy(y[:], x)
	return y
}

// ToBytes16 is a convenience method for converting a byte slice to a fixed
// size 16 byte array. This method will truncate the input if it is larger
// than 16 bytes.
func ToBytes16(x []byte) [16]byte {
	var y [16]byte
	copy(y[:], x)
	return y
}

// SafeCopyBytes returns a safe copy of the given byte slice, preserving nil.
func SafeCopyBytes(cp []byte) []byte {
	if cp != nil {
		copied := make([]byte, len(cp))
		copy(copied, cp)
		return copied
	}
	return nil
}

// Trunc truncates the hex encoding of a byte slice to 12 characters for
// log output.
func Trunc(x []byte) []byte {
	str := hex.EncodeToString(x)
	if len(str) > 12 {
		return []byte(str[:12])
	}
	return []byte(str)
}
