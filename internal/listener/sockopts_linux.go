//go:build linux

package listener

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// PrepareHandshakeSocket disables Nagle and zeroes SO_SNDBUF on conn for
// the duration of the handshake (spec.md §4.4 negotiation step 1: "Both
// sides disable Nagle and zero SO_SNDBUF for the handshake frames").
func PrepareHandshakeSocket(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w: %w", err, apperrors.TransientIO)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("get raw conn: %w: %w", err, apperrors.TransientIO)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, 0)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w: %w", err, apperrors.TransientIO)
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_SNDBUF=0: %w: %w", sockErr, apperrors.TransientIO)
	}
	return nil
}
