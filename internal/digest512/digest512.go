// Package digest512 implements the 512-bit mixing transform used throughout
// homeostas as a content digest, a handshake fingerprint input, and a
// keystream source for the light cipher.
//
// The shuffle permutation and finish padding are reproduced bit-for-bit from
// the reference implementation; a different transform would not be
// wire-compatible and must be treated as a distinct protocol version.
package digest512

import "encoding/binary"

// Key512 is the 64-byte opaque value used for public keys, private keys,
// p2p keys, session keys, fingerprints and content digests.
type Key512 [64]byte

// state is the 8x64-bit mixer state, laid out in the same order as the
// original cdc512_data union (a..h, aliased to digest64[8]).
type state struct {
	a, b, c, d, e, f, g, h uint64
}

// initial constants loaded by Init; identical across every host so that two
// empty digests agree.
const (
	c0 = 0x46F87CB1B3EB6319
	c1 = 0x7D7E68848EA8773A
	c2 = 0x18EEE71638D8563A
	c3 = 0xD5DB16BCFDF2D51D
	c4 = 0x4A878FB7B7463866
	c5 = 0xF8ED636BF755D298
	c6 = 0x2FF191FF69798254
	c7 = 0x8D3F9964239E6334
)

func (s *state) init() {
	s.a, s.b, s.c, s.d = c0, c1, c2, c3
	s.e, s.f, s.g, s.h = c4, c5, c6, c7
}

func (s *state) fromKey(k Key512) {
	s.a = binary.LittleEndian.Uint64(k[0:8])
	s.b = binary.LittleEndian.Uint64(k[8:16])
	s.c = binary.LittleEndian.Uint64(k[16:24])
	s.d = binary.LittleEndian.Uint64(k[24:32])
	s.e = binary.LittleEndian.Uint64(k[32:40])
	s.f = binary.LittleEndian.Uint64(k[40:48])
	s.g = binary.LittleEndian.Uint64(k[48:56])
	s.h = binary.LittleEndian.Uint64(k[56:64])
}

func (s *state) bytes() Key512 {
	var k Key512
	binary.LittleEndian.PutUint64(k[0:8], s.a)
	binary.LittleEndian.PutUint64(k[8:16], s.b)
	binary.LittleEndian.PutUint64(k[16:24], s.c)
	binary.LittleEndian.PutUint64(k[24:32], s.d)
	binary.LittleEndian.PutUint64(k[32:40], s.e)
	binary.LittleEndian.PutUint64(k[40:48], s.f)
	binary.LittleEndian.PutUint64(k[48:56], s.g)
	binary.LittleEndian.PutUint64(k[56:64], s.h)
	return k
}

func blockFromBytes(b []byte) state {
	var v state
	v.a = binary.LittleEndian.Uint64(b[0:8])
	v.b = binary.LittleEndian.Uint64(b[8:16])
	v.c = binary.LittleEndian.Uint64(b[16:24])
	v.d = binary.LittleEndian.Uint64(b[24:32])
	v.e = binary.LittleEndian.Uint64(b[32:40])
	v.f = binary.LittleEndian.Uint64(b[40:48])
	v.g = binary.LittleEndian.Uint64(b[48:56])
	v.h = binary.LittleEndian.Uint64(b[56:64])
	return v
}

// shuffle is the core permutation. r and v may alias the same state (as they
// do during finish() and during the light cipher's self-rotation); every
// read of v observes whatever r has already written earlier in this same
// call, exactly as the C++ reference's aliased const-reference parameter
// would.
func shuffle(r, v *state) {
	r.a -= v.e
	r.f ^= v.h >> 9
	r.h += v.a

	r.b -= v.f
	r.g ^= v.a << 9
	r.a += v.b

	r.c -= v.g
	r.h ^= v.b >> 23
	r.b += v.c

	r.d -= v.h
	r.a ^= v.c << 15
	r.c += v.d

	r.e -= v.a
	r.b ^= v.d >> 14
	r.d += v.e

	r.f -= v.b
	r.c ^= v.e << 20
	r.e += v.f

	r.g -= v.c
	r.d ^= v.f >> 17
	r.f += v.g

	r.h -= v.d
	r.e ^= v.g << 14
	r.g += v.h
}

const blockSize = 64

// Digest streams input through the mixing transform and produces a 512-bit
// Key512 on Finish. The zero value is not usable; use New.
type Digest struct {
	st state
	p  uint64
}

// New returns a Digest loaded with the fixed initial constants.
func New() *Digest {
	d := &Digest{}
	d.st.init()
	return d
}

// Reset reinitializes the digest to its just-constructed state.
func (d *Digest) Reset() {
	d.st.init()
	d.p = 0
}

// Write absorbs bytes into the running state, in 64-byte chunks, with any
// final short chunk zero-padded. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	d.p += uint64(len(p))

	for len(p) >= blockSize {
		v := blockFromBytes(p[:blockSize])
		shuffle(&d.st, &v)
		p = p[blockSize:]
	}

	if len(p) > 0 {
		var pad [blockSize]byte
		copy(pad[:], p)
		v := blockFromBytes(pad[:])
		shuffle(&d.st, &v)
	}

	return len(p), nil
}

// Finish absorbs the final length-dependent block (if any bytes were ever
// written) and returns the resulting 64-byte digest. The Digest must not be
// reused after Finish without a Reset.
func (d *Digest) Finish() Key512 {
	if d.p != 0 {
		var pad state
		pad.a = d.p
		pad.b = d.p << 1
		pad.c = d.p << 2
		pad.d = d.p << 3
		pad.e = d.p << 4
		pad.f = d.p << 5
		pad.g = d.p << 6
		pad.h = d.p << 7

		shuffle(&d.st, &pad)
		shuffle(&d.st, &d.st)
	}
	return d.st.bytes()
}

// Sum computes the digest of data in one call.
func Sum(data []byte) Key512 {
	d := New()
	d.Write(data)
	return d.Finish()
}

// SumChunks computes the digest of the concatenation of chunks, without
// actually concatenating them (at most one partial 64-byte block is
// buffered) — grounds the "digest equality for any chunking" property in
// spec.md §8.
func SumChunks(chunks [][]byte) Key512 {
	d := New()
	var pending [blockSize]byte
	n := 0
	for _, c := range chunks {
		for len(c) > 0 {
			k := copy(pending[n:], c)
			n += k
			c = c[k:]
			if n == blockSize {
				d.Write(pending[:])
				n = 0
			}
		}
	}
	if n > 0 {
		d.Write(pending[:n])
	}
	return d.Finish()
}
