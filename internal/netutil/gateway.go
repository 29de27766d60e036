package netutil

import (
	"fmt"
	"net"

	"github.com/jackpal/gateway"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// DiscoverGateway locates the default gateway (spec.md §4.3 "locate_gateway")
// by reading the platform routing table, grounded on the same third-party
// discovery library the pack's nat_traversal.go uses rather than
// hand-parsing /proc/net/route or shelling out to `ip route` ourselves.
func DiscoverGateway() (net.IP, error) {
	ip, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discover default gateway: %w: %w", err, apperrors.TransientIO)
	}
	return ip, nil
}
