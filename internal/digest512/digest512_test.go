package digest512

import (
	"math/rand/v2"
	"testing"
)

func TestDigestEqualityAcrossChunking(t *testing.T) {
	data := make([]byte, 10000)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range data {
		data[i] = byte(rng.IntN(256))
	}

	whole := Sum(data)

	for _, chunkSize := range []int{1, 3, 7, 64, 65, 4096} {
		var chunks [][]byte
		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			chunks = append(chunks, data[off:end])
		}
		got := SumChunks(chunks)
		if got != whole {
			t.Fatalf("chunk size %d: digest mismatch", chunkSize)
		}
	}
}

func TestDigestAvalanche(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))
	const trials = 2000
	var totalBits, flippedBits int

	for i := 0; i < trials; i++ {
		data := make([]byte, 64)
		for j := range data {
			data[j] = byte(rng.IntN(256))
		}
		base := Sum(data)

		bit := rng.IntN(len(data) * 8)
		data[bit/8] ^= 1 << uint(bit%8)
		flipped := Sum(data)

		for b := 0; b < 64; b++ {
			totalBits++
			if base[b] != flipped[b] {
				// Count differing bytes as a coarse avalanche signal; a
				// single-bit input change should touch most output bytes.
				flippedBits++
			}
		}
	}

	ratio := float64(flippedBits) / float64(totalBits)
	if ratio < 0.3 {
		t.Fatalf("avalanche ratio too low: %f", ratio)
	}
}

func TestShortStringRoundtrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	for i := 0; i < 100; i++ {
		var k Key512
		for j := range k {
			k[j] = byte(rng.IntN(256))
		}
		s := ShortString(k, DefaultAlphabet, ':', 5)
		got := FromShortString(s, DefaultAlphabet)
		if got != k {
			t.Fatalf("roundtrip mismatch for key %x: got %x via %q", k, got, s)
		}
	}
}

func TestEmptyDigestDeterministic(t *testing.T) {
	a := Sum(nil)
	b := Sum(nil)
	if a != b {
		t.Fatal("empty digest is not deterministic")
	}
}
