// Package session implements the framed, optionally enciphered byte
// stream of spec.md §4.4: a 196-byte self-scrambled handshake packet,
// proto/encryption/compression negotiation, and the resulting read/write
// transport.
package session

import (
	"fmt"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/cipher"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

// Proto selects whether a connection negotiates at all.
type Proto uint8

const (
	ProtoRAW Proto = iota // skips handshake entirely
	ProtoV1
)

// Option is one of Disable|Allow|Prefer|Required for an encryption or
// compression negotiation field (spec.md §4.4 step 2).
type Option uint8

const (
	OptionDisable Option = iota
	OptionAllow
	OptionPrefer
	OptionRequired
)

// ErrorCode is the handshake packet's error:u8 field.
type ErrorCode uint8

const (
	ErrorNone ErrorCode = iota
	ErrorInvalidProto
	ErrorEncryptionDisabled
	ErrorEncryptionRequired
	ErrorInvalidEncryption
	ErrorCompressionDisabled
	ErrorCompressionRequired
	ErrorInvalidCompression
)

func (e ErrorCode) Error() string {
	switch e {
	case ErrorNone:
		return "no error"
	case ErrorInvalidProto:
		return "InvalidProto"
	case ErrorEncryptionDisabled:
		return "EncryptionDisabled"
	case ErrorEncryptionRequired:
		return "EncryptionRequired"
	case ErrorInvalidEncryption:
		return "InvalidEncryption"
	case ErrorCompressionDisabled:
		return "CompressionDisabled"
	case ErrorCompressionRequired:
		return "CompressionRequired"
	case ErrorInvalidCompression:
		return "InvalidCompression"
	default:
		return "unknown handshake error"
	}
}

// CompressionMode is the negotiated compression algorithm. Only identity
// is implemented (spec.md §4.4: "compression is negotiated but currently
// identity").
type CompressionMode uint8

const (
	CompressionNone CompressionMode = iota
	CompressionMaxValue
)

// packetLen is the 196-byte wire size of a Packet (spec.md §6):
// session_key[64] || public_key[64] || fingerprint[64] || error:u8 ||
// proto:u8 || bitfield:u8 || bitfield:u8.
const packetLen = 64 + 64 + 64 + 1 + 1 + 1 + 1

// Packet is one handshake frame, sent by either side.
type Packet struct {
	SessionKey  digest512.Key512
	PublicKey   digest512.Key512
	Fingerprint digest512.Key512
	Error       ErrorCode
	Proto       Proto

	Encryption       cipher.Mode
	EncryptionOption Option
	Compression      CompressionMode
	CompressionOption Option
}

// Encode serializes p into a 196-byte wire packet, then scrambles every
// byte after session_key by XORing it with the light_cipher keystream
// keyed by session_key (spec.md §4.4 "the packet is self-scrambled").
func (p Packet) Encode() []byte {
	buf := make([]byte, packetLen)
	off := 0
	copy(buf[off:off+64], p.SessionKey[:])
	off += 64
	copy(buf[off:off+64], p.PublicKey[:])
	off += 64
	copy(buf[off:off+64], p.Fingerprint[:])
	off += 64
	buf[off] = byte(p.Error)
	off++
	buf[off] = byte(p.Proto)
	off++
	buf[off] = packBitfield(byte(p.Encryption), byte(p.EncryptionOption))
	off++
	buf[off] = packBitfield(byte(p.Compression), byte(p.CompressionOption))

	scramble(buf[64:], p.SessionKey)
	return buf
}

// Decode unscrambles and parses a 196-byte wire packet.
func Decode(buf []byte) (Packet, error) {
	if len(buf) != packetLen {
		return Packet{}, fmt.Errorf("handshake packet: expected %d bytes, got %d: %w", packetLen, len(buf), apperrors.Protocol)
	}

	var sessionKey digest512.Key512
	copy(sessionKey[:], buf[:64])

	plain := make([]byte, len(buf))
	copy(plain, buf)
	scramble(plain[64:], sessionKey)

	var p Packet
	p.SessionKey = sessionKey
	off := 64
	copy(p.PublicKey[:], plain[off:off+64])
	off += 64
	copy(p.Fingerprint[:], plain[off:off+64])
	off += 64
	p.Error = ErrorCode(plain[off])
	off++
	p.Proto = Proto(plain[off])
	off++
	enc, encOpt := unpackBitfield(plain[off])
	p.Encryption, p.EncryptionOption = cipher.Mode(enc), Option(encOpt)
	off++
	comp, compOpt := unpackBitfield(plain[off])
	p.Compression, p.CompressionOption = CompressionMode(comp), Option(compOpt)

	return p, nil
}

// packBitfield packs {value:6, option:2} into one byte, the layout
// spec.md §4.4 names as "bitfield {encryption:6, encryption_option:2,
// compression:6, compression_option:2}".
func packBitfield(value, option byte) byte {
	return (value & 0x3F) | (option&0x03)<<6
}

func unpackBitfield(b byte) (value, option byte) {
	return b & 0x3F, (b >> 6) & 0x03
}

// scramble XORs buf in place with the light_cipher keystream keyed by
// sessionKey. Applying it twice with the same key recovers the original.
func scramble(buf []byte, sessionKey digest512.Key512) {
	cipher.NewLight(sessionKey).Encode(buf, buf)
}
