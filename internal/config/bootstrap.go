package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/configstore"
	"github.com/GuramDuka/homeostas-go/internal/variant"
)

// Bootstrap is the shape of ~/.homeostas/bootstrap.yaml, read once on first
// launch to seed the SQLite config store. Later runs read everything from
// the store; this file is never rewritten by the daemon.
type Bootstrap struct {
	ListenPort  int         `yaml:"listen_port"`
	Rendezvous  []string    `yaml:"rendezvous"`
	TrackedDirs []string    `yaml:"tracked_dirs"`
	RemoteDirs  []RemoteDir `yaml:"remote_dirs"`
	LogLevel    string      `yaml:"log_level"`
	LogFile     string      `yaml:"log_file"`
}

// RemoteDir names one directory this host mirrors from another host
// (spec.md §9's restored Tracker design: a KindRemote tracker needs an
// address to dial and the owning host's public key to verify against).
type RemoteDir struct {
	Addr      string `yaml:"addr"`
	PublicKey string `yaml:"public_key"` // hex-encoded Key512, from the remote host's own identity.public_key
	Path      string `yaml:"path"`       // local mirror directory this tracker writes into
}

const bootstrapFileName = "bootstrap.yaml"

func defaultBootstrap() Bootstrap {
	return Bootstrap{
		ListenPort: 41000,
		LogLevel:   "info",
	}
}

// LoadBootstrap reads dir/bootstrap.yaml. A missing file is not an error:
// it returns the zero-config defaults so a fresh ~/.homeostas works out of
// the box.
func LoadBootstrap(dir string) (Bootstrap, error) {
	path := filepath.Join(dir, bootstrapFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultBootstrap(), nil
	}
	if err != nil {
		return Bootstrap{}, fmt.Errorf("read %s: %w: %w", path, err, apperrors.Fatal)
	}

	b := defaultBootstrap()
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bootstrap{}, fmt.Errorf("parse %s: %w: %w", path, err, apperrors.Fatal)
	}
	return b, nil
}

// Seed copies bootstrap values into store, but only for names that don't
// already exist — once the store has a value, bootstrap.yaml no longer
// governs it.
func Seed(store *configstore.Store, b Bootstrap) error {
	seedOnce := func(name string, v variant.Variant) error {
		_, ok, err := store.Get(name)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return store.Set(name, v)
	}

	if err := seedOnce("network.listen_port", variant.FromInt64(int64(b.ListenPort))); err != nil {
		return err
	}
	if err := seedOnce("log.level", variant.FromText(b.LogLevel)); err != nil {
		return err
	}
	if b.LogFile != "" {
		if err := seedOnce("log.file", variant.FromText(b.LogFile)); err != nil {
			return err
		}
	}
	for i, addr := range b.Rendezvous {
		name := fmt.Sprintf("network.rendezvous.%d", i)
		if err := seedOnce(name, variant.FromText(addr)); err != nil {
			return err
		}
	}
	for i, dir := range b.TrackedDirs {
		name := fmt.Sprintf("tracked_dirs.%d.path", i)
		if err := seedOnce(name, variant.FromText(dir)); err != nil {
			return err
		}
	}
	for i, rd := range b.RemoteDirs {
		addrName := fmt.Sprintf("remote_dirs.%d.addr", i)
		if err := seedOnce(addrName, variant.FromText(rd.Addr)); err != nil {
			return err
		}
		keyName := fmt.Sprintf("remote_dirs.%d.public_key", i)
		if err := seedOnce(keyName, variant.FromText(rd.PublicKey)); err != nil {
			return err
		}
		pathName := fmt.Sprintf("remote_dirs.%d.path", i)
		if err := seedOnce(pathName, variant.FromText(rd.Path)); err != nil {
			return err
		}
	}
	return nil
}
