// Package server implements the supervisor (C14) that composes the
// connection plane, discovery, announcement, and RDT subsystems into one
// running daemon: a cancellable context, one goroutine per long-running
// subsystem, accepted connections dispatched through a bounded worker
// pool, errors funneled back for the outermost shutdown race.
package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/GuramDuka/homeostas-go/internal/announcer"
	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/applog"
	"github.com/GuramDuka/homeostas-go/internal/catalog"
	"github.com/GuramDuka/homeostas-go/internal/cipher"
	"github.com/GuramDuka/homeostas-go/internal/config"
	"github.com/GuramDuka/homeostas-go/internal/configstore"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/discovery"
	"github.com/GuramDuka/homeostas-go/internal/indexer"
	"github.com/GuramDuka/homeostas-go/internal/listener"
	"github.com/GuramDuka/homeostas-go/internal/natpmp"
	"github.com/GuramDuka/homeostas-go/internal/netutil"
	"github.com/GuramDuka/homeostas-go/internal/rdt"
	"github.com/GuramDuka/homeostas-go/internal/session"
	"github.com/GuramDuka/homeostas-go/internal/tracker"
	"github.com/GuramDuka/homeostas-go/internal/walker"
	"github.com/GuramDuka/homeostas-go/internal/workerpool"
)

// Supervisor owns every long-running subsystem of one Homeostas process
// (spec.md §2's C8-C14 composed together).
type Supervisor struct {
	Dir       string
	Identity  config.Identity
	Store     *configstore.Store
	Discovery *discovery.Cache

	Rendezvous []string
	ListenPort uint16

	// LocalCatalogs holds one *catalog.Catalog per tracked_dirs entry,
	// followed by one mirror catalog per remote_dirs entry (closed
	// alongside everything else, never served to inbound connections).
	// The RDT wire protocol carries no directory selector (see DESIGN.md's
	// C14 entry), so an incoming RDT connection is served against
	// LocalCatalogs[0] — the first tracked_dirs entry, loaded before any
	// remote_dirs entry is appended; additional tracked directories are
	// indexed and rescanned but not yet reachable over the wire in this
	// build.
	LocalCatalogs []*catalog.Catalog

	trackers  []*tracker.Tracker
	listeners *listener.Set
	announce  *announcer.Announcer
	conns     *workerpool.Pool

	mu         sync.Mutex
	mappedAddr *netutil.SocketAddress // set by NAT-PMP once a public mapping exists
}

// Open loads or initializes ~/.homeostas (or dir, if non-empty) and
// returns a Supervisor ready for Run: bootstrap seeded, identity ensured,
// discovery cache opened, tracked directories' catalogs opened.
func Open(dir string) (*Supervisor, error) {
	if dir == "" {
		var err error
		dir, err = config.Dir()
		if err != nil {
			return nil, err
		}
	}

	store, err := configstore.Open(config.ConfigDBPath(dir))
	if err != nil {
		return nil, err
	}

	boot, err := config.LoadBootstrap(dir)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := config.Seed(store, boot); err != nil {
		store.Close()
		return nil, err
	}

	identity, err := config.EnsureIdentity(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	disc, err := discovery.Open(config.DiscoveryDBPath(dir))
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &Supervisor{Dir: dir, Identity: identity, Store: store, Discovery: disc}

	if err := s.loadListenPort(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.loadRendezvous(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.loadTrackedDirs(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.loadRemoteDirs(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Supervisor) loadListenPort() error {
	v, ok, err := s.Store.Get("network.listen_port")
	if err != nil {
		return err
	}
	if !ok {
		s.ListenPort = uint16(listener.ChoosePort())
		return nil
	}
	p, err := v.Int64()
	if err != nil {
		return err
	}
	s.ListenPort = uint16(p)
	return nil
}

func (s *Supervisor) loadRendezvous() error {
	names, err := s.Store.Children("network.rendezvous")
	if err != nil {
		return err
	}
	for _, n := range names {
		v, ok, err := s.Store.Get("network.rendezvous." + n)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		addr, err := v.Text()
		if err != nil {
			return err
		}
		s.Rendezvous = append(s.Rendezvous, addr)
	}
	return nil
}

func (s *Supervisor) loadRemoteDirs() error {
	names, err := s.Store.Children("remote_dirs")
	if err != nil {
		return err
	}
	for _, n := range names {
		addr, ok, err := s.storeText("remote_dirs." + n + ".addr")
		if err != nil {
			return err
		}
		if !ok || addr == "" {
			continue
		}
		keyHex, _, err := s.storeText("remote_dirs." + n + ".public_key")
		if err != nil {
			return err
		}
		path, _, err := s.storeText("remote_dirs." + n + ".path")
		if err != nil {
			return err
		}

		var remoteKey digest512.Key512
		if _, err := hex.Decode(remoteKey[:], []byte(keyHex)); err != nil {
			return fmt.Errorf("remote_dirs.%s.public_key: %w: %w", n, err, apperrors.Fatal)
		}

		// Mirror catalogs are plain client-side catalogs: AddRemoteTracker
		// and the remote_tracking change feed are a server-side concept
		// (spec.md §4.1) for deciding what to push to a subscriber, which
		// has no meaning for the catalog on the pulling end.
		shortName := digest512.ShortString(remoteKey, "", 0, 0)
		cat, err := catalog.Open(config.CatalogDBPath(s.Dir, shortName))
		if err != nil {
			return err
		}
		s.LocalCatalogs = append(s.LocalCatalogs, cat)

		client := rdt.NewClient(cat, newFileMirrorWriter(path, catalogPathResolver(cat)))
		run := tracker.RemoteClientRunner(client, s.dialRemote(addr))
		s.trackers = append(s.trackers, tracker.NewRemote(remoteKey, cat, run))
	}
	return nil
}

// dialRemote opens a session to a remote host and announces the RDT
// module, returning a tracker.Conn ready for RequestChanges rounds.
func (s *Supervisor) dialRemote(addr string) func(ctx context.Context) (tracker.Conn, error) {
	return func(ctx context.Context) (tracker.Conn, error) {
		sess, err := session.DialClient(ctx, addr, session.Options{
			Proto:             session.ProtoV1,
			PublicKey:         s.Identity.PublicKey,
			EncryptionOption:  session.OptionAllow,
			Encryption:        cipher.ModeLight,
			CompressionOption: session.OptionAllow,
		})
		if err != nil {
			return nil, err
		}
		if err := rdt.WriteModuleCode(sess); err != nil {
			sess.Close()
			return nil, err
		}
		return sess, nil
	}
}

func (s *Supervisor) storeText(name string) (string, bool, error) {
	v, ok, err := s.Store.Get(name)
	if err != nil || !ok {
		return "", ok, err
	}
	text, err := v.Text()
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (s *Supervisor) loadTrackedDirs() error {
	names, err := s.Store.Children("tracked_dirs")
	if err != nil {
		return err
	}
	for _, n := range names {
		v, ok, err := s.Store.Get("tracked_dirs." + n + ".path")
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		path, err := v.Text()
		if err != nil {
			return err
		}

		shortName := digest512.ShortString(digest512.Sum([]byte(path)), "", 0, 0)
		cat, err := catalog.Open(config.CatalogDBPath(s.Dir, shortName))
		if err != nil {
			return err
		}
		s.LocalCatalogs = append(s.LocalCatalogs, cat)

		ix := indexer.New(cat, path)
		run := func(ctx context.Context) error {
			w, err := walker.NewWatcher()
			if err != nil {
				applog.ReportAppError("fsnotify watcher unavailable, falling back to periodic rescan only", err)
				return ix.Loop(ctx, 0, nil)
			}
			defer w.Close()
			return ix.Loop(ctx, 0, w)
		}
		s.trackers = append(s.trackers, tracker.NewLocal(path, cat, run))
	}
	return nil
}

// Close releases every open database handle.
func (s *Supervisor) Close() error {
	for _, c := range s.LocalCatalogs {
		c.Close()
	}
	if s.Discovery != nil {
		s.Discovery.Close()
	}
	if s.listeners != nil {
		s.listeners.Close()
	}
	if s.conns != nil {
		s.conns.Close()
	}
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

// Run starts every subsystem and blocks until ctx is cancelled or a fatal
// subsystem error occurs, fanning out with errgroup (SPEC_FULL.md §4.1
// "Supervisor concurrency").
func (s *Supervisor) Run(ctx context.Context) error {
	addrs, err := netutil.LocalAddresses()
	if err != nil {
		return err
	}

	s.listeners, err = listener.Bind(ctx, addrs, s.ListenPort)
	if err != nil {
		return err
	}
	s.ListenPort = s.listeners.Port

	// Bounded, self-sizing worker pool dispatching accepted connections
	// (spec.md §5 "Scheduling model"): grows on demand up to NumCPU, never
	// below zero always-running workers.
	s.conns = workerpool.New(0, runtime.NumCPU())

	s.announce = announcer.New(s.Identity.PublicKey, s.Rendezvous, announcer.UDPPublisher(), func() []netutil.SocketAddress {
		out := make([]netutil.SocketAddress, len(addrs))
		copy(out, addrs)
		for i := range out {
			out[i].Port = s.ListenPort
		}
		if mapped := s.publicAddr(); mapped != nil {
			out = append(out, *mapped)
		}
		return out
	})

	g, ctx := errgroup.WithContext(ctx)

	for _, ln := range s.listeners.Listeners() {
		ln := ln
		g.Go(func() error { return s.acceptLoop(ctx, ln) })
	}

	g.Go(func() error { return s.announce.Run(ctx) })
	s.startNATPMP(ctx, g, addrs)

	for _, tr := range s.trackers {
		tr := tr
		g.Go(func() error {
			tr.Startup(ctx)
			<-ctx.Done()
			return tr.Shutdown()
		})
	}

	return g.Wait()
}

// startNATPMP requests a public port mapping when this host has no
// globally-reachable address of its own (spec.md §4.3 "locate_gateway").
// A gateway discovery failure is logged and otherwise ignored: hosts
// already globally reachable, or on networks without NAT-PMP support,
// simply announce their local addresses as-is.
func (s *Supervisor) startNATPMP(ctx context.Context, g *errgroup.Group, addrs []netutil.SocketAddress) {
	global, _ := netutil.PartitionGlobal(addrs)
	if len(global) > 0 {
		return
	}

	gw, err := netutil.DiscoverGateway()
	if err != nil {
		applog.ReportAppError("nat-pmp gateway discovery failed", err)
		return
	}

	client := &natpmp.Client{Gateway: gw, PrivatePort: s.ListenPort, LifetimeS: 3600}
	client.MappedCallback = func(m natpmp.Mapping) {
		addr, ok := netip.AddrFromSlice(m.PublicAddr.To4())
		if !ok {
			return
		}
		sa := netutil.SocketAddress{Addr: addr, Port: m.MappedPublicPort}
		s.mu.Lock()
		s.mappedAddr = &sa
		s.mu.Unlock()
		s.announce.NotifyAddressChange()
	}

	g.Go(func() error { return client.Run(ctx) })
}

func (s *Supervisor) publicAddr() *netutil.SocketAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappedAddr
}

func (s *Supervisor) acceptLoop(ctx context.Context, ln *net.TCPListener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("accept on %s: %w: %w", ln.Addr(), err, apperrors.TransientIO)
		}
		s.conns.Submit(func() { s.handleConn(ctx, conn) })
	}
}

func (s *Supervisor) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	tag := applog.NewWorkerTag()
	applog.Debug("accepted connection", "worker", tag, "remote", conn.RemoteAddr())

	sess, err := session.AcceptServer(ctx, conn, session.Options{
		Proto:             session.ProtoV1,
		PublicKey:         s.Identity.PublicKey,
		EncryptionOption:  session.OptionAllow,
		Encryption:        cipher.ModeLight,
		CompressionOption: session.OptionAllow,
	})
	if err != nil {
		applog.ReportAppError("session handshake failed worker="+tag, err)
		return
	}

	code, err := rdt.ReadModuleCode(sess)
	if err != nil {
		applog.ReportAppError("read rdt module code worker="+tag, err)
		return
	}
	if code != rdt.ModuleRDT {
		applog.ReportAppError("unknown module code worker="+tag, fmt.Errorf("module %d: %w", code, apperrors.Protocol))
		return
	}
	var served *catalog.Catalog
	for _, tr := range s.trackers {
		if !tr.IsRemote() {
			served = tr.Catalog
			break
		}
	}
	if served == nil {
		applog.ReportAppError("rdt request with no tracked directories worker="+tag, apperrors.Protocol)
		return
	}

	srv := &rdt.Server{Catalog: served}
	if err := srv.Serve(sess, sess.PeerPublicKey); err != nil {
		applog.ReportAppError("rdt serve failed worker="+tag, err)
	}
}
