// Package config locates ~/.homeostas and loads the one-time bootstrap
// file (spec.md §6 on-disk formats; SPEC_FULL.md §4.0 ambient stack) that
// seeds the SQLite-backed configuration store on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// Dir returns ~/.homeostas, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w: %w", err, apperrors.Fatal)
	}
	dir := filepath.Join(home, ".homeostas")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w: %w", dir, err, apperrors.Fatal)
	}
	return dir, nil
}

// ConfigDBPath is the configuration database path (spec.md §6 item 1).
func ConfigDBPath(dir string) string {
	return filepath.Join(dir, "homeostas.sqlite")
}

// DiscoveryDBPath is the discovery cache database path (spec.md §6 item 2).
func DiscoveryDBPath(dir string) string {
	return filepath.Join(dir, "discovery.sqlite")
}

// CatalogDBPath is the per-directory catalog path for a directory whose
// short digest name is dirDigestName (spec.md §6 item 3).
func CatalogDBPath(dir, dirDigestName string) string {
	return filepath.Join(dir, dirDigestName+".sqlite")
}
