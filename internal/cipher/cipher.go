// Package cipher implements the two stream ciphers spec.md §4.2 derives
// from digest512 and lcgprng. Both are pure XOR keystream ciphers:
// encryption and decryption are the same operation.
package cipher

import (
	"encoding/binary"

	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/lcgprng"
)

// Stream is the common shape of both ciphers: key first, then repeatedly
// XOR a buffer against the keystream.
type Stream interface {
	Encode(dst, src []byte)
}

// Light is the digest512-keystream cipher: a 64-byte ring equal to the
// current mixer state, rotated by a self-shuffle once exhausted.
type Light struct {
	ring *digest512.Ring
}

// NewLight keys a Light cipher from a Key512 (typically the session key or
// a p2p key).
func NewLight(key digest512.Key512) *Light {
	return &Light{ring: digest512.NewRing(key)}
}

// Encode XORs src against the keystream into dst. dst and src must have
// equal length; dst and src may be the same slice (in-place encode).
func (c *Light) Encode(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ c.ring.NextByte()
	}
}

// Strong is the lagged-Fibonacci-keystream cipher, selected by the
// handshake's Strong encryption mode.
type Strong struct {
	gen  *lcgprng.Generator
	mask [8]byte
	pos  int
}

// NewStrong keys a Strong cipher from a Key512.
func NewStrong(key digest512.Key512) *Strong {
	s := &Strong{gen: lcgprng.New(key[:]), pos: 8}
	return s
}

// Encode XORs src against the keystream into dst, one 64-bit word (8 bytes)
// of keystream at a time, exposed little-endian.
func (c *Strong) Encode(dst, src []byte) {
	for i := range src {
		if c.pos == 8 {
			binary.LittleEndian.PutUint64(c.mask[:], c.gen.Next())
			c.pos = 0
		}
		dst[i] = src[i] ^ c.mask[c.pos]
		c.pos++
	}
}
