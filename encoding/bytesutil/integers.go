package bytesutil

import (
	"encoding/binary"
)

// Uint64ToBytesBigEndian conversion.
func Uint64ToBytesBigEndian(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return buf
}

// BytesToUint64BigEndian conversion. Returns 0 if empty bytes or byte slice
// with length more than 8.
func BytesToUint64BigEndian(b []byte) uint64 {
	if len(b) == 0 || len(b) > 8 {
		return 0
	}
	return binary.BigEndian.Uint64(append(make([]byte, 8-len(b)), b...))
}

// Uint32ToBytesBigEndian conversion.
func Uint32ToBytesBigEndian(i uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, i)
	return buf
}
