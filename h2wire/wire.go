// Package h2wire holds the low-level byte packing helpers shared by the
// frame codec: big-endian 24/32-bit integers and the padding scheme used by
// DATA, HEADERS and PUSH_PROMISE frames.
package h2wire

import (
	"crypto/rand"

	"github.com/valyala/fastrand"
)

// Uint24ToBytes writes the 24-bit big-endian representation of n into b.
func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2] // bounds check hint
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// BytesToUint24 reads a 24-bit big-endian integer from b.
func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Uint32ToBytes writes the 32-bit big-endian representation of n into b.
func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

// BytesToUint32 reads a 32-bit big-endian integer from b.
func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// AppendUint32Bytes appends the big-endian representation of n to dst.
func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// Resize grows b (reusing its backing array when possible) to neededLen.
func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// CutPadding strips the 1-byte pad-length prefix and trailing padding from a
// PADDED DATA/HEADERS/PUSH_PROMISE payload of the given declared length.
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return payload, errBadPaddingLength
	}
	pad := int(payload[0])
	if length-pad-1 < 0 || len(payload) < length-pad-1 {
		return nil, errBadPaddingLength
	}
	return payload[1 : length-pad], nil
}

// AddPadding prefixes b with a random pad-length byte and appends that many
// zero-ish random bytes of padding, so that padded frames are not a fixed,
// fingerprintable size on the wire.
func AddPadding(b []byte) []byte {
	n := int(fastrand.Uint32n(256-9)) + 9
	nn := len(b)

	b = Resize(b, nn+n+1)
	copy(b[1:], b[:nn])
	b[0] = byte(n)

	_, _ = rand.Read(b[nn+1 : nn+1+n])

	return b
}
