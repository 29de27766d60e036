package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenSeedsIdentityAndTrackedDirs(t *testing.T) {
	dir := t.TempDir()
	bootstrap := "listen_port: 9123\nrendezvous:\n  - rendezvous.example:7000\ntracked_dirs:\n  - " + filepath.Join(dir, "docs") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "bootstrap.yaml"), []byte(bootstrap), 0644); err != nil {
		t.Fatal(err)
	}

	sup, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sup.Close()

	if sup.ListenPort != 9123 {
		t.Fatalf("expected listen port 9123, got %d", sup.ListenPort)
	}
	if len(sup.Rendezvous) != 1 || sup.Rendezvous[0] != "rendezvous.example:7000" {
		t.Fatalf("unexpected rendezvous set: %+v", sup.Rendezvous)
	}
	if len(sup.LocalCatalogs) != 1 {
		t.Fatalf("expected 1 tracked-directory catalog, got %d", len(sup.LocalCatalogs))
	}

	var zeroKey [64]byte
	if sup.Identity.PublicKey == zeroKey {
		t.Fatal("expected a generated, non-zero public key")
	}
}

func TestOpenBuildsRemoteTrackerFromConfig(t *testing.T) {
	dir := t.TempDir()
	mirrorPath := filepath.Join(dir, "mirror")
	remoteKeyHex := strings.Repeat("ab", 64) // a 64-byte Key512, hex-encoded
	bootstrap := "remote_dirs:\n  - addr: peer.example:41000\n    public_key: " +
		remoteKeyHex + "\n    path: " + mirrorPath + "\n"
	if err := os.WriteFile(filepath.Join(dir, "bootstrap.yaml"), []byte(bootstrap), 0644); err != nil {
		t.Fatal(err)
	}

	sup, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sup.Close()

	if len(sup.trackers) != 1 {
		t.Fatalf("expected 1 remote tracker, got %d", len(sup.trackers))
	}
	if !sup.trackers[0].IsRemote() {
		t.Fatal("expected the configured tracker to report IsRemote")
	}
	if len(sup.LocalCatalogs) != 1 {
		t.Fatalf("expected the remote mirror's catalog to be tracked for Close, got %d", len(sup.LocalCatalogs))
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	firstKey := first.Identity.PublicKey
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if second.Identity.PublicKey != firstKey {
		t.Fatal("expected identity to survive a restart against the same directory")
	}
}
