package cipher

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

func randKey(rng *rand.Rand) digest512.Key512 {
	var k digest512.Key512
	for i := range k {
		k[i] = byte(rng.IntN(256))
	}
	return k
}

func TestLightCipherSymmetry(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for trial := 0; trial < 20; trial++ {
		key := randKey(rng)
		plaintext := make([]byte, 5000)
		for i := range plaintext {
			plaintext[i] = byte(rng.IntN(256))
		}

		enc := NewLight(key)
		ciphertext := make([]byte, len(plaintext))
		enc.Encode(ciphertext, plaintext)

		dec := NewLight(key)
		decoded := make([]byte, len(plaintext))
		dec.Encode(decoded, ciphertext)

		if !bytes.Equal(decoded, plaintext) {
			t.Fatalf("trial %d: light cipher did not roundtrip", trial)
		}
	}
}

func TestStrongCipherSymmetry(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	for trial := 0; trial < 20; trial++ {
		key := randKey(rng)
		plaintext := make([]byte, 5000)
		for i := range plaintext {
			plaintext[i] = byte(rng.IntN(256))
		}

		enc := NewStrong(key)
		ciphertext := make([]byte, len(plaintext))
		enc.Encode(ciphertext, plaintext)

		dec := NewStrong(key)
		decoded := make([]byte, len(plaintext))
		dec.Encode(decoded, ciphertext)

		if !bytes.Equal(decoded, plaintext) {
			t.Fatalf("trial %d: strong cipher did not roundtrip", trial)
		}
	}
}

func TestCipherVariantNoneIsIdentity(t *testing.T) {
	var key digest512.Key512
	c := New(ModeNone, key)
	src := []byte("hello world")
	dst := make([]byte, len(src))
	c.Encode(dst, src)
	if !bytes.Equal(dst, src) {
		t.Fatal("ModeNone must be the identity transform")
	}
}

func TestCipherVariantRoundtrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	key := randKey(rng)

	for _, mode := range []Mode{ModeLight, ModeStrong} {
		plaintext := []byte("the rain in spain falls mainly on the plain")
		ciphertext := make([]byte, len(plaintext))
		New(mode, key).Encode(ciphertext, plaintext)

		decoded := make([]byte, len(plaintext))
		New(mode, key).Encode(decoded, ciphertext)

		if !bytes.Equal(decoded, plaintext) {
			t.Fatalf("mode %d did not roundtrip", mode)
		}
	}
}
