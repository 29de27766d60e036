//go:build !linux

package listener

import (
	"fmt"
	"net"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// PrepareHandshakeSocket disables Nagle on conn. SO_SNDBUF=0 is a Linux-
// specific refinement (see sockopts_linux.go); on other platforms, Nagle
// alone still satisfies spec.md §4.4 step 1's intent of minimizing
// handshake latency.
func PrepareHandshakeSocket(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}
