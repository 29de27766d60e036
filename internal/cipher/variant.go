package cipher

import "github.com/GuramDuka/homeostas-go/internal/digest512"

// Mode names the negotiated encryption algorithm (spec.md §4.4).
type Mode uint8

const (
	ModeNone Mode = iota
	ModeLight
	ModeStrong
	// ModeMaxValue bounds the valid range; an encryption id at or beyond
	// this value is a protocol error (spec.md §4.4 "InvalidEncryption").
	ModeMaxValue
)

// Cipher is the tagged variant spec.md §9 calls for in place of emulating
// inheritance between the two stream ciphers: { None, Light(state),
// Strong(state) }.
type Cipher struct {
	mode   Mode
	light  *Light
	strong *Strong
}

// New constructs a Cipher of the given mode, keyed from key. ModeNone
// ignores the key and performs no transformation.
func New(mode Mode, key digest512.Key512) Cipher {
	switch mode {
	case ModeLight:
		return Cipher{mode: mode, light: NewLight(key)}
	case ModeStrong:
		return Cipher{mode: mode, strong: NewStrong(key)}
	default:
		return Cipher{mode: ModeNone}
	}
}

// Mode reports the cipher's negotiated algorithm.
func (c Cipher) Mode() Mode {
	return c.mode
}

// Encode XORs src against the keystream into dst (a no-op copy for
// ModeNone). dst and src may alias for in-place encoding.
func (c Cipher) Encode(dst, src []byte) {
	switch c.mode {
	case ModeLight:
		c.light.Encode(dst, src)
	case ModeStrong:
		c.strong.Encode(dst, src)
	default:
		if len(src) > 0 {
			copy(dst, src)
		}
	}
}
