package session

import (
	"fmt"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/cipher"
)

// checkOptions applies the three symmetric negotiation rules spec.md §4.4
// names for encryption (and, analogously, compression): a required/disable
// mismatch in either direction is an error, and an out-of-range algorithm
// id is an error.
func checkOptions(clientOpt, serverOpt Option, clientAlg, maxAlg byte, disabledErr, requiredErr, invalidErr ErrorCode) ErrorCode {
	if clientOpt == OptionRequired && serverOpt == OptionDisable {
		return disabledErr
	}
	if clientOpt == OptionDisable && serverOpt == OptionRequired {
		return requiredErr
	}
	if clientAlg >= maxAlg {
		return invalidErr
	}
	return ErrorNone
}

// Negotiate applies spec.md §4.4's rule table against a client packet,
// given the server's own option preferences, and returns the error code
// to report (ErrorNone on success).
func Negotiate(client Packet, serverProto Proto, serverEncOpt, serverCompOpt Option) ErrorCode {
	if client.Proto != serverProto {
		return ErrorInvalidProto
	}
	if ec := checkOptions(client.EncryptionOption, serverEncOpt, byte(client.Encryption), byte(cipher.ModeMaxValue), ErrorEncryptionDisabled, ErrorEncryptionRequired, ErrorInvalidEncryption); ec != ErrorNone {
		return ec
	}
	if ec := checkOptions(client.CompressionOption, serverCompOpt, byte(client.Compression), byte(CompressionMaxValue), ErrorCompressionDisabled, ErrorCompressionRequired, ErrorInvalidCompression); ec != ErrorNone {
		return ec
	}
	return ErrorNone
}

// ResolveEncryption picks the final encryption mode: serverOpt=Allow
// copies the client's suggestion; otherwise the server's own suggested
// algorithm (serverAlg) wins, collapsing to None when either side
// disabled it (spec.md §4.4 "honoring Allow by copying the client's
// choice").
func ResolveEncryption(client Packet, serverOpt Option, serverAlg cipher.Mode) cipher.Mode {
	if serverOpt == OptionDisable || client.EncryptionOption == OptionDisable {
		return cipher.ModeNone
	}
	if serverOpt == OptionAllow {
		return client.Encryption
	}
	return serverAlg
}

// ResolveCompression mirrors ResolveEncryption for the (currently
// identity-only) compression field.
func ResolveCompression(client Packet, serverOpt Option, serverAlg CompressionMode) CompressionMode {
	if serverOpt == OptionDisable || client.CompressionOption == OptionDisable {
		return CompressionNone
	}
	if serverOpt == OptionAllow {
		return client.Compression
	}
	return serverAlg
}

// AsError converts a non-success ErrorCode into a Go error wrapping
// apperrors.Protocol, or nil for ErrorNone.
func (e ErrorCode) AsError() error {
	if e == ErrorNone {
		return nil
	}
	return fmt.Errorf("handshake negotiation failed: %w: %w", e, apperrors.Protocol)
}
