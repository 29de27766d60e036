package sqlitedb

import (
	"crypto/rand"
	"encoding/binary"
)

// RandomID64 draws a random nonzero uint64, suitable as a row id candidate.
// Callers are expected to retry on collision against whatever uniqueness
// constraint applies (spec.md §3: "drawn until unused").
func RandomID64() uint64 {
	for {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		v := binary.LittleEndian.Uint64(b[:])
		if v != 0 {
			return v
		}
	}
}
