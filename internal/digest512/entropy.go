package digest512

import (
	"crypto/rand"
	"math/big"
	"runtime"
	"time"
)

// DefaultAlphabet is the base-50 alphabet used by ShortString when the
// caller does not supply one (spec.md §6).
const DefaultAlphabet = "._,=~!@#$%^&-+0123456789abcdefghijklmnopqrstuvwxyz"

// ShortString renders k as a compact base-N string using alphabet (base-50
// by default), optionally grouping every interval characters with
// delimiter. Encoding is big-integer long division over the full 512-bit
// value, least-significant group first — matching the reference encoder.
func ShortString(k Key512, alphabet string, delimiter byte, interval int) string {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	base := big.NewInt(int64(len(alphabet)))
	a := new(big.Int).SetBytes(reverse(k[:]))

	var out []byte
	mod := new(big.Int)
	zero := big.NewInt(0)
	count := 0

	for a.Cmp(zero) > 0 {
		a.DivMod(a, base, mod)
		out = append(out, alphabet[mod.Int64()])
		count++
		if delimiter != 0 && interval > 0 && count == interval {
			out = append(out, delimiter)
			count = 0
		}
	}

	if delimiter != 0 && interval > 0 && len(out) > 0 && out[len(out)-1] == delimiter {
		out = out[:len(out)-1]
	}

	return string(out)
}

// FromShortString parses the inverse of ShortString back into a Key512,
// ignoring any byte not present in alphabet (e.g. group delimiters).
func FromShortString(s string, alphabet string) Key512 {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	base := big.NewInt(int64(len(alphabet)))
	a := big.NewInt(0)
	mult := big.NewInt(1)

	idx := make(map[byte]int64, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		idx[alphabet[i]] = int64(i)
	}

	for i := 0; i < len(s); i++ {
		v, ok := idx[s[i]]
		if !ok {
			continue
		}
		term := new(big.Int).Mul(mult, big.NewInt(v))
		a.Add(a, term)
		mult.Mul(mult, base)
	}

	var k Key512
	b := reverse(a.Bytes())
	copy(k[:], b)
	return k
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// GenerateEntropy mixes process/clock jitter with crypto/rand output into a
// fresh Key512, for seeding identities and the lagged Fibonacci generator.
// It deliberately avoids any dependency on the mixer's own deterministic
// constants beyond using Digest as the absorber.
func GenerateEntropy() Key512 {
	d := New()

	var seed [16]byte
	_, _ = rand.Read(seed[:])
	d.Write(seed[:])

	var tbuf [8]byte
	now := uint64(time.Now().UnixNano())
	for i := 0; i < 8; i++ {
		tbuf[i] = byte(now >> (8 * i))
	}
	d.Write(tbuf[:])

	// A small amount of runtime jitter (goroutine/GC counters) broadens the
	// entropy pool beyond the OS RNG and the clock alone.
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	var mbuf [8]byte
	for i := 0; i < 8; i++ {
		mbuf[i] = byte(ms.NumGC >> (8 * i))
	}
	d.Write(mbuf[:])

	return d.Finish()
}

// EntropyWord returns a single fast-path 64-bit entropy value, used by the
// indexer to mix a monotonic word into the root directory digest on every
// rescan (spec.md §3, §4.1 step 5).
func EntropyWord() uint64 {
	return uint64(time.Now().UnixNano())
}
