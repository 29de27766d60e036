package config

import (
	"crypto/rand"
	"fmt"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/configstore"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/variant"
)

// Identity is this host's public/private Key512 pair (spec.md §3 "Key512
// ... public key (host identity; 64 bytes), private key (host identity;
// 64 bytes)"). Non-goals explicitly exclude real cryptographic
// authentication beyond the session handshake, so these are opaque
// identity labels, not an asymmetric keypair.
type Identity struct {
	PublicKey  digest512.Key512
	PrivateKey digest512.Key512
}

// EnsureIdentity loads this host's identity from store, generating and
// persisting a fresh one on first run.
func EnsureIdentity(store *configstore.Store) (Identity, error) {
	pub, err := ensureKey(store, "identity.public_key")
	if err != nil {
		return Identity{}, err
	}
	priv, err := ensureKey(store, "identity.private_key")
	if err != nil {
		return Identity{}, err
	}
	return Identity{PublicKey: pub, PrivateKey: priv}, nil
}

func ensureKey(store *configstore.Store, name string) (digest512.Key512, error) {
	v, ok, err := store.Get(name)
	if err != nil {
		return digest512.Key512{}, err
	}
	if ok {
		return v.Key512()
	}

	var key digest512.Key512
	if _, err := rand.Read(key[:]); err != nil {
		return digest512.Key512{}, fmt.Errorf("generate %s: %w: %w", name, err, apperrors.Fatal)
	}
	if err := store.Set(name, variant.FromKey512(key)); err != nil {
		return digest512.Key512{}, err
	}
	return key, nil
}
