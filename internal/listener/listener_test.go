package listener

import (
	"context"
	"net/netip"
	"testing"

	"github.com/GuramDuka/homeostas-go/internal/netutil"
)

func TestBindLoopbackAndAccept(t *testing.T) {
	addr := netutil.SocketAddress{Addr: netip.MustParseAddr("127.0.0.1")}
	set, err := Bind(context.Background(), []netutil.SocketAddress{addr}, ChoosePort())
	if err != nil {
		t.Fatal(err)
	}
	defer set.Close()

	if len(set.Listeners()) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(set.Listeners()))
	}
	if set.Port == 0 {
		t.Fatal("expected a nonzero bound port")
	}
}

func TestChoosePortStaysInRange(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := ChoosePort()
		if p < minPort {
			t.Fatalf("port %d below minimum %d", p, minPort)
		}
	}
}
