// Package announcer periodically publishes this host's presence to
// rendezvous peers (spec.md §4.3 "Announcer (C10)"), re-announcing sooner
// when the address set itself changes, rate-limited with a token-bucket
// limiter the same way a per-user bandwidth meter rate-limits traffic.
package announcer

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/applog"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/netutil"
)

const publishInterval = 30 * time.Second

// Publisher sends a best-effort announcement datagram to a rendezvous peer.
// It is a narrow interface so tests can substitute an in-memory fake for
// a real UDP socket.
type Publisher interface {
	Publish(ctx context.Context, rendezvous string, payload []byte) error
}

// udpPublisher is the production Publisher, one fire-and-forget UDP
// datagram per rendezvous peer (spec.md §4.3: "No response expected;
// delivery is best effort").
type udpPublisher struct{}

func (udpPublisher) Publish(ctx context.Context, rendezvous string, payload []byte) error {
	conn, err := net.Dial("udp", rendezvous)
	if err != nil {
		return fmt.Errorf("dial rendezvous %s: %w: %w", rendezvous, err, apperrors.TransientIO)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("publish to %s: %w: %w", rendezvous, err, apperrors.TransientIO)
	}
	return nil
}

// UDPPublisher returns the production UDP-datagram Publisher.
func UDPPublisher() Publisher { return udpPublisher{} }

// Announcer periodically (and on address-set change) announces publicKey
// and the current address set to every configured rendezvous peer.
type Announcer struct {
	PublicKey   digest512.Key512
	Rendezvous  []string
	Publisher   Publisher
	AddressFunc func() []netutil.SocketAddress

	wake    chan struct{}
	limiter *rate.Limiter
}

// New creates an Announcer rate-limited to at most one extra wake per
// second beyond the scheduled interval, so rapid address churn cannot
// flood rendezvous peers.
func New(publicKey digest512.Key512, rendezvous []string, pub Publisher, addrFunc func() []netutil.SocketAddress) *Announcer {
	return &Announcer{
		PublicKey:   publicKey,
		Rendezvous:  rendezvous,
		Publisher:   pub,
		AddressFunc: addrFunc,
		wake:        make(chan struct{}, 1),
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// NotifyAddressChange wakes the announce loop immediately, subject to the
// rate limiter (spec.md §4.3: "On any change to the address set, wake
// immediately").
func (a *Announcer) NotifyAddressChange() {
	if !a.limiter.Allow() {
		return
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Run announces every publishInterval, or sooner on NotifyAddressChange,
// until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) error {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		a.announceOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-a.wake:
		}
	}
}

func (a *Announcer) announceOnce(ctx context.Context) {
	addrs := a.AddressFunc()
	payload := encodeAnnouncement(a.PublicKey, addrs)

	for _, r := range a.Rendezvous {
		if err := a.Publisher.Publish(ctx, r, payload); err != nil {
			applog.ReportAppError("announce to rendezvous peer", err)
		}
	}
}

// encodeAnnouncement packs public_key || packed address list, the minimal
// wire form spec.md leaves unspecified beyond "containing the host public
// key and the current public address set".
func encodeAnnouncement(key digest512.Key512, addrs []netutil.SocketAddress) []byte {
	out := make([]byte, 0, 64+len(addrs)*19)
	out = append(out, key[:]...)
	out = append(out, netutil.PackList(addrs)...)
	return out
}
