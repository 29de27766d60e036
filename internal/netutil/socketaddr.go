// Package netutil implements the SocketAddress type of spec.md §3 and the
// interface enumeration spec.md §4.3 needs to partition global from
// private addresses.
package netutil

import (
	"fmt"
	"net"
	"net/netip"
)

// Family distinguishes IPv4 from IPv6 SocketAddress values.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// SocketAddress is an address/port pair with the predicates spec.md §3
// names: is_loopback, is_link_local, is_site_local, is_wildcard, is_global.
type SocketAddress struct {
	Family Family
	Addr   netip.Addr
	Port   uint16
}

// Parse parses "host:port" (or a bare host with port 0) into a SocketAddress.
func Parse(s string) (SocketAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// Accept a bare address with no port (port defaults to 0).
		host = s
		portStr = "0"
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return SocketAddress{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	var port uint64
	if portStr != "0" {
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return SocketAddress{}, fmt.Errorf("parse port %q: %w", portStr, err)
		}
	}

	fam := FamilyV4
	if addr.Is6() && !addr.Is4In6() {
		fam = FamilyV6
	}
	return SocketAddress{Family: fam, Addr: addr.Unmap(), Port: uint16(port)}, nil
}

// String formats the address back as "host:port", the inverse of Parse.
func (a SocketAddress) String() string {
	return net.JoinHostPort(a.Addr.String(), fmt.Sprint(a.Port))
}

// IsLoopback reports whether a targets the loopback range.
func (a SocketAddress) IsLoopback() bool { return a.Addr.IsLoopback() }

// IsLinkLocal reports whether a is a link-local unicast address.
func (a SocketAddress) IsLinkLocal() bool { return a.Addr.IsLinkLocalUnicast() }

// IsSiteLocal reports whether a is a private/site-local address (RFC 1918
// for IPv4, unique local for IPv6).
func (a SocketAddress) IsSiteLocal() bool {
	return a.Addr.IsPrivate()
}

// IsWildcard reports whether a is the unspecified address (0.0.0.0 / ::).
func (a SocketAddress) IsWildcard() bool { return a.Addr.IsUnspecified() }

// IsGlobal reports whether a is none of loopback, link-local, site-local,
// or wildcard — reachable from the public Internet (spec.md §3).
func (a SocketAddress) IsGlobal() bool {
	return !a.IsLoopback() && !a.IsLinkLocal() && !a.IsSiteLocal() && !a.IsWildcard() && a.Addr.IsValid()
}

// Pack encodes a as a fixed-size wire form: family byte, 16-byte address
// (an IPv4 address in its IPv4-mapped ::ffff:a.b.c.d form), 2-byte
// little-endian port. Every record is 19 bytes whatever the family; records
// are not sized per family.
func (a SocketAddress) Pack() []byte {
	buf := make([]byte, 1+16+2)
	buf[0] = byte(a.Family)
	addr16 := a.Addr.As16()
	copy(buf[1:17], addr16[:])
	buf[17] = byte(a.Port)
	buf[18] = byte(a.Port >> 8)
	return buf
}

// PackList concatenates the packed form of every address in addrs.
func PackList(addrs []SocketAddress) []byte {
	out := make([]byte, 0, len(addrs)*19)
	for _, a := range addrs {
		out = append(out, a.Pack()...)
	}
	return out
}

// UnpackList is the inverse of PackList.
func UnpackList(data []byte) []SocketAddress {
	const recSize = 1 + 16 + 2
	var out []SocketAddress
	for len(data) >= recSize {
		rec := data[:recSize]
		data = data[recSize:]

		var a16 [16]byte
		copy(a16[:], rec[1:17])
		addr := netip.AddrFrom16(a16)
		fam := Family(rec[0])
		if fam == FamilyV4 {
			addr = netip.AddrFrom4([4]byte(a16[12:16]))
		}
		port := uint16(rec[17]) | uint16(rec[18])<<8
		out = append(out, SocketAddress{Family: fam, Addr: addr, Port: port})
	}
	return out
}
