package session

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/GuramDuka/homeostas-go/internal/cipher"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

func TestPacketEncodeDecodeRoundtrip(t *testing.T) {
	p := Packet{
		SessionKey:         digest512.Sum([]byte("session")),
		PublicKey:          digest512.Sum([]byte("public")),
		Fingerprint:        digest512.Sum([]byte("fingerprint")),
		Error:              ErrorNone,
		Proto:              ProtoV1,
		Encryption:         cipher.ModeStrong,
		EncryptionOption:   OptionPrefer,
		Compression:        CompressionNone,
		CompressionOption:  OptionAllow,
	}
	buf := p.Encode()
	if len(buf) != 196 {
		t.Fatalf("expected 196-byte packet, got %d", len(buf))
	}
	if !bytes.Equal(buf[:64], p.SessionKey[:]) {
		t.Fatal("session_key must not be scrambled")
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.PublicKey != p.PublicKey || got.Fingerprint != p.Fingerprint {
		t.Fatal("public_key/fingerprint mismatch after roundtrip")
	}
	if got.Error != p.Error || got.Proto != p.Proto {
		t.Fatal("error/proto mismatch after roundtrip")
	}
	if got.Encryption != p.Encryption || got.EncryptionOption != p.EncryptionOption {
		t.Fatal("encryption bitfield mismatch after roundtrip")
	}
	if got.Compression != p.Compression || got.CompressionOption != p.CompressionOption {
		t.Fatal("compression bitfield mismatch after roundtrip")
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestNegotiateProtoMismatch(t *testing.T) {
	client := Packet{Proto: ProtoV1}
	if ec := Negotiate(client, ProtoRAW, OptionAllow, OptionAllow); ec != ErrorInvalidProto {
		t.Fatalf("expected ErrorInvalidProto, got %v", ec)
	}
}

func TestNegotiateEncryptionRequiredVsDisabled(t *testing.T) {
	client := Packet{Proto: ProtoV1, EncryptionOption: OptionRequired}
	if ec := Negotiate(client, ProtoV1, OptionDisable, OptionAllow); ec != ErrorEncryptionDisabled {
		t.Fatalf("expected ErrorEncryptionDisabled, got %v", ec)
	}
}

func TestNegotiateEncryptionDisabledVsRequired(t *testing.T) {
	client := Packet{Proto: ProtoV1, EncryptionOption: OptionDisable}
	if ec := Negotiate(client, ProtoV1, OptionRequired, OptionAllow); ec != ErrorEncryptionRequired {
		t.Fatalf("expected ErrorEncryptionRequired, got %v", ec)
	}
}

func TestNegotiateInvalidEncryptionID(t *testing.T) {
	client := Packet{Proto: ProtoV1, EncryptionOption: OptionAllow, Encryption: cipher.ModeMaxValue}
	if ec := Negotiate(client, ProtoV1, OptionAllow, OptionAllow); ec != ErrorInvalidEncryption {
		t.Fatalf("expected ErrorInvalidEncryption, got %v", ec)
	}
}

func TestResolveEncryptionAllowCopiesClientChoice(t *testing.T) {
	client := Packet{EncryptionOption: OptionAllow, Encryption: cipher.ModeStrong}
	got := ResolveEncryption(client, OptionAllow, cipher.ModeLight)
	if got != cipher.ModeStrong {
		t.Fatalf("expected client's choice (Strong), got %v", got)
	}
}

func TestHandshakeOverPipeEstablishesMatchingTransportKeys(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	pub := digest512.Sum([]byte("client-pub"))
	fp := digest512.Sum([]byte("client-fp"))
	serverPub := digest512.Sum([]byte("server-pub"))
	serverFp := digest512.Sum([]byte("server-fp"))

	clientOpts := Options{
		Proto:             ProtoV1,
		EncryptionOption:  OptionAllow,
		Encryption:        cipher.ModeLight,
		CompressionOption: OptionAllow,
		PublicKey:         pub,
		Fingerprint:       fp,
	}
	serverOpts := Options{
		Proto:             ProtoV1,
		EncryptionOption:  OptionAllow,
		CompressionOption: OptionAllow,
		PublicKey:         serverPub,
		Fingerprint:       serverFp,
	}

	type result struct {
		s   *Session
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		s := newSession(clientConn)
		err := s.clientHandshake(context.Background(), clientOpts)
		clientCh <- result{s, err}
	}()
	go func() {
		s := newSession(serverConn)
		err := s.serverHandshake(context.Background(), serverOpts)
		serverCh <- result{s, err}
	}()

	clientRes := <-clientCh
	serverRes := <-serverCh
	if clientRes.err != nil {
		t.Fatalf("client handshake failed: %v", clientRes.err)
	}
	if serverRes.err != nil {
		t.Fatalf("server handshake failed: %v", serverRes.err)
	}

	if clientRes.s.LocalTransportKey != serverRes.s.RemoteTransportKey {
		t.Fatal("client local key must equal server remote key")
	}
	if serverRes.s.LocalTransportKey != clientRes.s.RemoteTransportKey {
		t.Fatal("server local key must equal client remote key")
	}
	if clientRes.s.PeerPublicKey != serverPub {
		t.Fatal("client did not learn server's public key")
	}
}

func TestHandshakeClientAdoptsServerResolvedEncryption(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientOpts := Options{
		Proto:             ProtoV1,
		EncryptionOption:  OptionPrefer,
		Encryption:        cipher.ModeLight,
		CompressionOption: OptionAllow,
	}
	serverOpts := Options{
		Proto:             ProtoV1,
		EncryptionOption:  OptionPrefer,
		Encryption:        cipher.ModeStrong,
		CompressionOption: OptionAllow,
	}

	type result struct {
		s   *Session
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		s := newSession(clientConn)
		err := s.clientHandshake(context.Background(), clientOpts)
		clientCh <- result{s, err}
	}()
	go func() {
		s := newSession(serverConn)
		err := s.serverHandshake(context.Background(), serverOpts)
		serverCh <- result{s, err}
	}()

	clientRes := <-clientCh
	serverRes := <-serverCh
	if clientRes.err != nil {
		t.Fatalf("client handshake failed: %v", clientRes.err)
	}
	if serverRes.err != nil {
		t.Fatalf("server handshake failed: %v", serverRes.err)
	}

	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := serverRes.s.ReadDelim()
		done <- readResult{data, err}
	}()

	payload := []byte("resolved-mode-check")
	if err := clientRes.s.WriteDelim(payload); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	got := <-done
	if got.err != nil {
		t.Fatalf("server read failed: %v", got.err)
	}
	if !bytes.Equal(got.data, payload) {
		t.Fatalf("server decoded %q, want %q — client and server must share the same resolved cipher mode", got.data, payload)
	}
}

func TestHandshakeRejectsRequiredVsDisabledEncryption(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientOpts := Options{Proto: ProtoV1, EncryptionOption: OptionRequired, CompressionOption: OptionAllow}
	serverOpts := Options{Proto: ProtoV1, EncryptionOption: OptionDisable, CompressionOption: OptionAllow}

	errCh := make(chan error, 2)
	go func() {
		s := newSession(clientConn)
		errCh <- s.clientHandshake(context.Background(), clientOpts)
	}()
	go func() {
		s := newSession(serverConn)
		errCh <- s.serverHandshake(context.Background(), serverOpts)
	}()

	err1 := <-errCh
	err2 := <-errCh
	if err1 == nil || err2 == nil {
		t.Fatal("expected both sides to report the EncryptionDisabled failure")
	}
}
