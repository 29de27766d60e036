// Package listener binds the passive socket set of spec.md §4.3: one
// listener per non-loopback, non-link-local interface, all sharing a port
// chosen from a hash of monotonic time and bumped with backoff on bind
// failure.
package listener

import (
	"context"
	"fmt"
	"hash/fnv"
	"net"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/applog"
	"github.com/GuramDuka/homeostas-go/internal/backoff"
	"github.com/GuramDuka/homeostas-go/internal/netutil"
)

const minPort = 1024
const maxBindAttempts = 16

// Set is a bound listener per local interface address, all on the same port.
type Set struct {
	Port      uint16
	listeners []*net.TCPListener
}

// ChoosePort derives the initial candidate port from a hash of monotonic
// time, as spec.md §4.3 specifies ("a chosen port P derived from a hash of
// monotonic time, ≥1024").
func ChoosePort() uint16 {
	h := fnv.New32a()
	var buf [8]byte
	now := time.Now().UnixNano()
	for i := range buf {
		buf[i] = byte(now >> (8 * i))
	}
	h.Write(buf[:])
	span := uint32(65536 - minPort)
	return uint16(minPort + (h.Sum32() % span))
}

// Bind binds one passive TCP listener per address in addrs, all at the
// same port; on any bind failure it closes everything bound so far, bumps
// the port, and retries after a backoff (spec.md §4.3 "Listener set").
func Bind(ctx context.Context, addrs []netutil.SocketAddress, startPort uint16) (*Set, error) {
	port := startPort
	bo := backoff.New(50*time.Millisecond, 5*time.Second)

	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		set, err := tryBindAll(addrs, port)
		if err == nil {
			return set, nil
		}
		applog.ReportAppError("bind listener set", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.Next()):
		}
		port = nextPort(port)
	}
	return nil, fmt.Errorf("could not bind listener set after %d attempts: %w", maxBindAttempts, apperrors.TransientIO)
}

func nextPort(p uint16) uint16 {
	if int(p)+1 > 65535 {
		return minPort
	}
	return p + 1
}

func tryBindAll(addrs []netutil.SocketAddress, port uint16) (*Set, error) {
	set := &Set{Port: port}
	for _, a := range addrs {
		tcpAddr := &net.TCPAddr{IP: a.Addr.AsSlice(), Port: int(port)}
		ln, err := net.ListenTCP("tcp", tcpAddr)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("listen on %s:%d: %w: %w", a.Addr, port, err, apperrors.TransientIO)
		}
		set.listeners = append(set.listeners, ln)
	}
	return set, nil
}

// Close shuts down every bound listener.
func (s *Set) Close() {
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.listeners = nil
}

// Listeners exposes the bound listeners so the supervisor can spawn one
// accepter task per socket (spec.md §4.3).
func (s *Set) Listeners() []*net.TCPListener {
	return s.listeners
}
