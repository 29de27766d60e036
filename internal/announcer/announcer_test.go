package announcer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/netutil"
)

type fakePublisher struct {
	mu    sync.Mutex
	count int
}

func (f *fakePublisher) Publish(ctx context.Context, rendezvous string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

func (f *fakePublisher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func TestAnnounceOnceHitsEveryRendezvousPeer(t *testing.T) {
	pub := &fakePublisher{}
	a := New(digest512.Sum([]byte("key")), []string{"a:1", "b:2", "c:3"}, pub, func() []netutil.SocketAddress {
		return nil
	})
	a.announceOnce(context.Background())
	if pub.Count() != 3 {
		t.Fatalf("expected 3 publishes, got %d", pub.Count())
	}
}

func TestNotifyAddressChangeWakesRunLoop(t *testing.T) {
	pub := &fakePublisher{}
	a := New(digest512.Sum([]byte("key")), []string{"a:1"}, pub, func() []netutil.SocketAddress {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	a.NotifyAddressChange()
	time.Sleep(20 * time.Millisecond)

	if pub.Count() < 2 {
		t.Fatalf("expected at least 2 announce rounds (initial + wake), got %d", pub.Count())
	}

	<-done
}

func TestNotifyAddressChangeIsRateLimited(t *testing.T) {
	a := New(digest512.Sum([]byte("key")), nil, &fakePublisher{}, func() []netutil.SocketAddress {
		return nil
	})

	a.NotifyAddressChange()
	select {
	case <-a.wake:
	default:
		t.Fatal("expected first NotifyAddressChange to queue a wake")
	}

	a.NotifyAddressChange()
	select {
	case <-a.wake:
		t.Fatal("expected immediate second NotifyAddressChange to be rate-limited")
	default:
	}
}

func TestEncodeAnnouncementLayout(t *testing.T) {
	key := digest512.Sum([]byte("host"))
	addr, err := netutil.Parse("203.0.113.7:41000")
	if err != nil {
		t.Fatal(err)
	}
	payload := encodeAnnouncement(key, []netutil.SocketAddress{addr})
	if len(payload) != 64+19 {
		t.Fatalf("expected 83-byte payload, got %d", len(payload))
	}
	if [64]byte(payload[:64]) != key {
		t.Fatal("public key prefix mismatch")
	}
}
