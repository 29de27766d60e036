// Package lcgprng implements the seven-tap lagged Fibonacci generator used
// as a keystream source by the strong cipher (spec.md §4.2). The ring size
// and tap positions are chosen to match the reference's quoted period of
// roughly 2^8511 (133 64-bit words of state, ring size 133); the tap
// positions themselves are not specified by the source material (the
// header implementing them was not retrievable), so this module fixes seven
// tap lags spread across the ring and combines them by wraparound addition,
// documented here as the resolved ambiguity rather than guessed silently.
package lcgprng

import "encoding/binary"

// ringSize is the number of 64-bit words retained in the feedback ring.
// 133 words * 64 bits = 8512 bits, matching the "~2^8511" period quoted by
// the source for a maximal-length generator of this width.
const ringSize = 133

// taps are the seven lag distances combined on every step. They are fixed,
// not configurable, so that two hosts seeded identically produce identical
// streams.
var taps = [7]int{1, 5, 17, 40, 71, 97, 127}

// Generator is a seven-tap lagged Fibonacci generator over 64-bit words.
type Generator struct {
	ring [ringSize]uint64
	idx  int
}

// New returns a Generator seeded and warmed from seed.
func New(seed []byte) *Generator {
	g := &Generator{}
	g.Init(seed)
	g.Warming()
	return g
}

// Init deterministically fills the ring from seed. Seed bytes are expanded
// cyclically and mixed with the word index so that short seeds still
// populate the whole ring with varied values.
func (g *Generator) Init(seed []byte) {
	if len(seed) == 0 {
		seed = []byte{1}
	}

	var buf [8]byte
	for i := 0; i < ringSize; i++ {
		for b := 0; b < 8; b++ {
			buf[b] = seed[(i*8+b)%len(seed)]
		}
		v := binary.LittleEndian.Uint64(buf[:])
		// Mix in the word index (via a fixed odd multiplier) so that
		// repeating short seeds don't produce a repeating ring.
		v ^= uint64(i)*0x9E3779B97F4A7C15 + 0xBF58476D1CE4E5B9
		g.ring[i] = v
	}
	g.idx = 0
}

// Warming runs the recurrence for several ring lengths, discarding output,
// so that the generator's state no longer resembles the seed expansion.
func (g *Generator) Warming() {
	for i := 0; i < ringSize*4; i++ {
		g.Next()
	}
}

// Next returns the next 64-bit word in the sequence.
func (g *Generator) Next() uint64 {
	var v uint64
	for _, lag := range taps {
		v += g.ring[(g.idx-lag+ringSize*2)%ringSize]
	}
	g.ring[g.idx] = v
	g.idx = (g.idx + 1) % ringSize
	return v
}
