package netutil

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// LocalAddresses enumerates the process's non-loopback, non-link-local
// interface addresses (spec.md §4.3 "Listener set"), returned as
// SocketAddress values with port 0 (the caller fills in the chosen port).
func LocalAddresses() ([]SocketAddress, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w: %w", err, apperrors.TransientIO)
	}

	var out []SocketAddress
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			addr = addr.Unmap()
			sa := SocketAddress{Addr: addr}
			if addr.Is6() {
				sa.Family = FamilyV6
			}
			if sa.IsLoopback() || sa.IsLinkLocal() {
				continue
			}
			out = append(out, sa)
		}
	}
	return out, nil
}

// PartitionGlobal splits addrs into global (publicly reachable) and
// private sets, per spec.md §4.3 "Public address inference".
func PartitionGlobal(addrs []SocketAddress) (global, private []SocketAddress) {
	for _, a := range addrs {
		if a.IsGlobal() {
			global = append(global, a)
		} else {
			private = append(private, a)
		}
	}
	return global, private
}
