// Package tracker implements the local/remote tracker polymorphism of
// original_source/app/include/tracker.hpp, generalized as spec.md §9
// describes: a tagged Kind instead of a C++ interface hierarchy.
package tracker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/GuramDuka/homeostas-go/internal/catalog"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/rdt"
)

// Kind distinguishes a tracker watching its own directory (Local, driven
// by the indexer) from one mirroring a remote host's directory (Remote,
// driven by an RDT client over a session).
type Kind uint8

const (
	KindLocal Kind = iota
	KindRemote
)

// Runner is the concrete work a tracker performs while running — the
// indexer's rescan loop for Local, an RDT client's poll loop for Remote.
// It must return promptly when ctx is cancelled.
type Runner func(ctx context.Context) error

// Tracker is one tracked directory, local or remote (tracker.hpp's
// directory_tracker / remote_directory_tracker pair, collapsed into one
// struct with a Kind tag per spec.md §9's design note).
type Tracker struct {
	Kind     Kind
	Path     string          // non-empty for KindLocal
	Catalog  *catalog.Catalog
	RemoteOf digest512.Key512 // the remote host's public key, for KindRemote

	run Runner

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	doneCh  chan struct{}
	err     error
}

// NewLocal constructs a tracker for a directory this host owns, driven by
// run (normally the indexer's rescan loop).
func NewLocal(path string, cat *catalog.Catalog, run Runner) *Tracker {
	return &Tracker{Kind: KindLocal, Path: path, Catalog: cat, run: run}
}

// NewRemote constructs a tracker mirroring a directory owned by the host
// identified by remoteKey, driven by run (normally an rdt.Client poll loop).
func NewRemote(remoteKey digest512.Key512, cat *catalog.Catalog, run Runner) *Tracker {
	return &Tracker{Kind: KindRemote, RemoteOf: remoteKey, Catalog: cat, run: run}
}

// IsRemote mirrors tracker.hpp's is_remote() capability query.
func (t *Tracker) IsRemote() bool { return t.Kind == KindRemote }

// RemoteKey mirrors tracker.hpp's remote() accessor; it is the zero key
// for a local tracker.
func (t *Tracker) RemoteKey() digest512.Key512 { return t.RemoteOf }

// Startup begins the tracker's Runner in the background, mirroring
// tracker.hpp's startup()/shutdown() lifecycle pair. Calling Startup twice
// without an intervening Shutdown is a no-op.
func (t *Tracker) Startup(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true

	done := make(chan struct{})
	t.doneCh = done
	go func() {
		defer close(done)
		if t.run != nil {
			t.err = t.run(runCtx)
		}
	}()
}

// Shutdown cancels the running tracker and waits for it to exit.
func (t *Tracker) Shutdown() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	done := t.doneCh
	t.mu.Unlock()

	cancel()
	<-done

	t.mu.Lock()
	t.started = false
	err := t.err
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("tracker %s shutdown: %w", t.label(), err)
	}
	return nil
}

func (t *Tracker) label() string {
	if t.Kind == KindRemote {
		return fmt.Sprintf("remote:%x", t.RemoteOf[:8])
	}
	return "local:" + t.Path
}

// Conn is the minimal connection shape RemoteClientRunner needs to run one
// RDT round over: a framed, bidirectional byte stream it can close between
// rounds (satisfied by *session.Session).
type Conn interface {
	io.ReadWriter
	Close() error
}

// RemoteClientRunner builds a Runner that repeatedly issues RDT
// RequestChanges rounds against dial until ctx is cancelled, the shape a
// KindRemote tracker needs to stay synchronized with its origin host.
func RemoteClientRunner(client *rdt.Client, dial func(ctx context.Context) (Conn, error)) Runner {
	return func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			conn, err := dial(ctx)
			if err != nil {
				return err
			}
			err = client.RequestChanges(conn)
			conn.Close()
			if err != nil {
				return err
			}
		}
	}
}
