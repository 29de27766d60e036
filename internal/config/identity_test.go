package config

import (
	"path/filepath"
	"testing"

	"github.com/GuramDuka/homeostas-go/internal/configstore"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

func openTestStore(t *testing.T) *configstore.Store {
	t.Helper()
	s, err := configstore.Open(filepath.Join(t.TempDir(), "config.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureIdentityGeneratesOnFirstCall(t *testing.T) {
	store := openTestStore(t)

	id, err := EnsureIdentity(store)
	if err != nil {
		t.Fatal(err)
	}
	var zero digest512.Key512
	if id.PublicKey == zero || id.PrivateKey == zero {
		t.Fatal("expected generated identity keys to be non-zero")
	}
	if id.PublicKey == id.PrivateKey {
		t.Fatal("expected distinct public/private keys")
	}
}

func TestEnsureIdentityIsStableAcrossCalls(t *testing.T) {
	store := openTestStore(t)

	first, err := EnsureIdentity(store)
	if err != nil {
		t.Fatal(err)
	}
	second, err := EnsureIdentity(store)
	if err != nil {
		t.Fatal(err)
	}
	if first.PublicKey != second.PublicKey || first.PrivateKey != second.PrivateKey {
		t.Fatal("expected identity to persist across EnsureIdentity calls")
	}
}
