package netutil

import (
	"math/rand"
	"testing"
)

func TestParseFormatRoundtripIPv4(t *testing.T) {
	cases := []string{"192.168.1.10:8080", "8.8.8.8:53", "127.0.0.1:1"}
	for _, s := range cases {
		a, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		got := a.String()
		b, err := Parse(got)
		if err != nil {
			t.Fatalf("reparse %q: %v", got, err)
		}
		if a.Addr != b.Addr || a.Port != b.Port {
			t.Fatalf("roundtrip mismatch: %v != %v", a, b)
		}
	}
}

func TestParseFormatRoundtripIPv6(t *testing.T) {
	a, err := Parse("[2001:db8::1]:443")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse(a.String())
	if err != nil {
		t.Fatal(err)
	}
	if a.Addr != b.Addr || a.Port != b.Port {
		t.Fatalf("roundtrip mismatch: %v != %v", a, b)
	}
}

func TestPredicates(t *testing.T) {
	loopback, _ := Parse("127.0.0.1:0")
	if !loopback.IsLoopback() || loopback.IsGlobal() {
		t.Fatalf("expected loopback predicate to hold: %+v", loopback)
	}

	linkLocal, _ := Parse("169.254.1.1:0")
	if !linkLocal.IsLinkLocal() || linkLocal.IsGlobal() {
		t.Fatalf("expected link-local predicate to hold: %+v", linkLocal)
	}

	siteLocal, _ := Parse("10.0.0.5:0")
	if !siteLocal.IsSiteLocal() || siteLocal.IsGlobal() {
		t.Fatalf("expected site-local predicate to hold: %+v", siteLocal)
	}

	wildcard, _ := Parse("0.0.0.0:0")
	if !wildcard.IsWildcard() || wildcard.IsGlobal() {
		t.Fatalf("expected wildcard predicate to hold: %+v", wildcard)
	}

	global, _ := Parse("8.8.8.8:0")
	if !global.IsGlobal() {
		t.Fatalf("expected 8.8.8.8 to be global: %+v", global)
	}
}

func TestPackUnpackListRoundtrip(t *testing.T) {
	var addrs []SocketAddress
	for i := 0; i < 5; i++ {
		port := uint16(rand.Intn(65536))
		a, _ := Parse("203.0.113.1:0")
		a.Port = port
		addrs = append(addrs, a)
	}
	v6, _ := Parse("[2001:db8::abcd]:0")
	v6.Port = 9999
	addrs = append(addrs, v6)

	packed := PackList(addrs)
	unpacked := UnpackList(packed)
	if len(unpacked) != len(addrs) {
		t.Fatalf("expected %d addresses, got %d", len(addrs), len(unpacked))
	}
	for i := range addrs {
		if addrs[i].Addr != unpacked[i].Addr || addrs[i].Port != unpacked[i].Port {
			t.Fatalf("mismatch at %d: %+v != %+v", i, addrs[i], unpacked[i])
		}
	}
}
