package session

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/cipher"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/listener"
)

// setTCPHandshakeMode disables Nagle and zeroes SO_SNDBUF for the
// handshake frames (spec.md §4.4 negotiation step 1), best-effort: a
// non-TCP conn (e.g. a test pipe) is left untouched.
func setTCPHandshakeMode(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		listener.PrepareHandshakeSocket(tcp)
	}
}

// bufferSize is the internal read/write buffer size, on the order of the
// MSS (spec.md §4.4 "internal fixed-size read/write buffers (on the order
// of the MSS, 1220 bytes)").
const bufferSize = 1220

// HandshakeTimeout bounds the full handshake exchange (spec.md §5
// "Handshake: 10 s total").
const HandshakeTimeout = 10 * time.Second

// DefaultDelimiter is the framing byte used by ReadDelim/WriteDelim when
// the caller does not choose another (spec.md §4.4 "default NUL").
const DefaultDelimiter = 0x00

// KeyDeriver derives the local and remote transport keys from the two
// handshake packets (spec.md §4.4: "an application-supplied key-derivation
// functor ... MUST be deterministic and produce two 64-byte keys from the
// two packets").
type KeyDeriver func(ours, theirs Packet) (local, remote digest512.Key512)

// Options configures a client- or server-side negotiation.
type Options struct {
	Proto              Proto
	EncryptionOption   Option
	Encryption         cipher.Mode
	CompressionOption  Option
	Compression        CompressionMode
	PublicKey          digest512.Key512
	Fingerprint        digest512.Key512
	DeriveKeys         KeyDeriver
}

// Session is a handshaked, optionally enciphered byte stream.
type Session struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	delimiter byte

	encryptor cipher.Cipher
	decryptor cipher.Cipher

	handshaked bool

	LocalTransportKey  digest512.Key512
	RemoteTransportKey digest512.Key512
	PeerPublicKey      digest512.Key512
	PeerFingerprint    digest512.Key512
}

func newSession(conn net.Conn) *Session {
	return &Session{
		conn:      conn,
		r:         bufio.NewReaderSize(conn, bufferSize),
		w:         bufio.NewWriterSize(conn, bufferSize),
		delimiter: DefaultDelimiter,
	}
}

// SetDelimiter overrides the default NUL delimiter used by ReadDelim and
// WriteDelim.
func (s *Session) SetDelimiter(d byte) { s.delimiter = d }

// Handshaked reports whether handshake negotiation has completed
// successfully.
func (s *Session) Handshaked() bool { return s.handshaked }

// DialClient opens a TCP connection to addr and runs the client side of
// the handshake (spec.md §4.4 negotiation steps 1-2 and the symmetric
// client-side rule check in step 3's closing sentence).
func DialClient(ctx context.Context, addr string, opts Options) (*Session, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", addr, err, apperrors.TransientIO)
	}
	s := newSession(conn)
	if opts.Proto == ProtoRAW {
		return s, nil
	}
	if err := s.clientHandshake(ctx, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// AcceptServer runs the server side of the handshake over an already
// accepted connection.
func AcceptServer(ctx context.Context, conn net.Conn, opts Options) (*Session, error) {
	s := newSession(conn)
	if opts.Proto == ProtoRAW {
		return s, nil
	}
	if err := s.serverHandshake(ctx, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) clientHandshake(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()
	setTCPHandshakeMode(s.conn)

	var sessionKey digest512.Key512
	if _, err := rand.Read(sessionKey[:]); err != nil {
		return fmt.Errorf("generate session key: %w: %w", err, apperrors.Fatal)
	}

	client := Packet{
		SessionKey:         sessionKey,
		PublicKey:          opts.PublicKey,
		Fingerprint:        opts.Fingerprint,
		Proto:              opts.Proto,
		Encryption:         opts.Encryption,
		EncryptionOption:   opts.EncryptionOption,
		Compression:        opts.Compression,
		CompressionOption:  opts.CompressionOption,
	}
	if err := s.writePacket(ctx, client); err != nil {
		return err
	}

	server, err := s.readPacket(ctx)
	if err != nil {
		return err
	}
	if server.Error != ErrorNone {
		return server.Error.AsError()
	}
	if ec := Negotiate(server, opts.Proto, opts.EncryptionOption, opts.CompressionOption); ec != ErrorNone {
		return ec.AsError()
	}

	s.finishHandshake(opts, client, server, server.Encryption)
	return nil
}

func (s *Session) serverHandshake(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()
	setTCPHandshakeMode(s.conn)

	client, err := s.readPacket(ctx)
	if err != nil {
		return err
	}

	ec := Negotiate(client, opts.Proto, opts.EncryptionOption, opts.CompressionOption)

	server := Packet{
		SessionKey:        client.SessionKey,
		PublicKey:         opts.PublicKey,
		Fingerprint:       opts.Fingerprint,
		Proto:             opts.Proto,
		Error:             ec,
		CompressionOption: opts.CompressionOption,
		EncryptionOption:  opts.EncryptionOption,
	}
	if ec == ErrorNone {
		server.Encryption = ResolveEncryption(client, opts.EncryptionOption, opts.Encryption)
		server.Compression = ResolveCompression(client, opts.CompressionOption, opts.Compression)
	}

	if err := s.writePacket(ctx, server); err != nil {
		return err
	}
	if ec != ErrorNone {
		return ec.AsError()
	}

	s.finishHandshake(opts, server, client, server.Encryption)
	return nil
}

// finishHandshake derives the transport keys and initializes the cipher
// pair: encryptor keyed with local, decryptor keyed with remote
// (spec.md §4.4). mode is always the server's resolved algorithm — the
// server picks the final encryption and the client applies it rather than
// re-picking from its own pre-negotiation suggestion (spec.md §4.4 "the
// server picks the final encryption/compression... the client applies the
// rules symmetrically").
func (s *Session) finishHandshake(opts Options, ours, theirs Packet, mode cipher.Mode) {
	deriver := opts.DeriveKeys
	if deriver == nil {
		deriver = DefaultKeyDeriver
	}
	local, remote := deriver(ours, theirs)
	s.LocalTransportKey = local
	s.RemoteTransportKey = remote
	s.PeerPublicKey = theirs.PublicKey
	s.PeerFingerprint = theirs.Fingerprint

	s.encryptor = cipher.New(mode, local)
	s.decryptor = cipher.New(mode, remote)
	s.handshaked = true
}

// DefaultKeyDeriver mixes (public_key, session_key, fingerprint) from
// both packets through digest512 to produce the two transport keys. It is
// a reasonable default satisfying spec.md §4.4's determinism contract;
// callers with a stricter protocol requirement supply their own via
// Options.DeriveKeys.
func DefaultKeyDeriver(ours, theirs Packet) (local, remote digest512.Key512) {
	local = digest512.SumChunks([][]byte{ours.PublicKey[:], ours.SessionKey[:], ours.Fingerprint[:], theirs.SessionKey[:]})
	remote = digest512.SumChunks([][]byte{theirs.PublicKey[:], theirs.SessionKey[:], theirs.Fingerprint[:], ours.SessionKey[:]})
	return local, remote
}

func (s *Session) writePacket(ctx context.Context, p Packet) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}
	if _, err := s.conn.Write(p.Encode()); err != nil {
		return fmt.Errorf("write handshake packet: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

func (s *Session) readPacket(ctx context.Context) (Packet, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	}
	buf := make([]byte, packetLen)
	if _, err := s.readFull(buf); err != nil {
		return Packet{}, fmt.Errorf("read handshake packet: %w: %w", err, apperrors.TransientIO)
	}
	return Decode(buf)
}

func (s *Session) readFull(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := s.conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Read fills p with decrypted bytes from the stream, decrypting in place
// after the internal buffer is filled by recv (spec.md §4.4 "Read path").
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 && s.handshaked {
		s.decryptor.Encode(p[:n], p[:n])
	}
	if err != nil {
		return n, fmt.Errorf("session read: %w: %w", err, apperrors.TransientIO)
	}
	return n, nil
}

// Write encrypts p into the internal write buffer and flushes it via send
// (spec.md §4.4 "Write path").
func (s *Session) Write(p []byte) (int, error) {
	buf := p
	if s.handshaked {
		buf = make([]byte, len(p))
		s.encryptor.Encode(buf, p)
	}
	n, err := s.w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("session write: %w: %w", err, apperrors.TransientIO)
	}
	if err := s.w.Flush(); err != nil {
		return n, fmt.Errorf("session flush: %w: %w", err, apperrors.TransientIO)
	}
	return len(p), nil
}

// ReadDelim reads and decrypts bytes up to and including the configured
// delimiter (default NUL).
func (s *Session) ReadDelim() ([]byte, error) {
	var out []byte
	b := make([]byte, 1)
	for {
		if _, err := s.Read(b); err != nil {
			return out, err
		}
		if b[0] == s.delimiter {
			return out, nil
		}
		out = append(out, b[0])
	}
}

// WriteDelim writes p followed by the configured delimiter.
func (s *Session) WriteDelim(p []byte) error {
	if _, err := s.Write(append(append([]byte{}, p...), s.delimiter)); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying connection. A failed session is never
// reused (spec.md §4.4 "The session is not reused across failures; the
// supervisor opens a new one"); callers discard s after Close.
func (s *Session) Close() error { return s.conn.Close() }
