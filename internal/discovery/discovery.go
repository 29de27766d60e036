// Package discovery is the peer cache of spec.md §4.3/§6: which hosts have
// announced themselves, and the socket addresses + p2p key last reported
// for each public key. Backed by ~/.homeostas/discovery.sqlite.
package discovery

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/netutil"
	"github.com/GuramDuka/homeostas-go/internal/sqlitedb"
)

const schema = `
CREATE TABLE IF NOT EXISTS known_announcers (
	node   TEXT PRIMARY KEY,
	mtime  INTEGER NOT NULL DEFAULT 0,
	expire INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS known_peers (
	key     BLOB PRIMARY KEY,
	p2p_key BLOB NOT NULL DEFAULT x'',
	addrs   BLOB NOT NULL DEFAULT x'',
	mtime   INTEGER NOT NULL DEFAULT 0,
	expire  INTEGER NOT NULL DEFAULT 0
);
`

// Expiry is how long an announce_host upsert stays fresh before
// discover_host/discover_host_p2p_key treat it as a miss (spec.md §4.3
// "Discovery record expiry: 60 s").
const Expiry = 60 * time.Second

// Cache is the discovery.sqlite-backed peer cache.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the discovery cache at path.
func Open(path string) (*Cache, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// NoteAnnouncer records that node announced itself at now, valid until
// now+Expiry (spec.md §4.3 "known_announcers ... hosts we have seen
// announcing themselves").
func (c *Cache) NoteAnnouncer(node string, now time.Time) error {
	_, err := c.db.Exec(
		`INSERT INTO known_announcers (node, mtime, expire) VALUES (?, ?, ?)
		 ON CONFLICT(node) DO UPDATE SET mtime = excluded.mtime, expire = excluded.expire`,
		node, now.UnixNano(), now.Add(Expiry).UnixNano())
	if err != nil {
		return fmt.Errorf("note announcer %s: %w: %w", node, err, apperrors.TransientLocal)
	}
	return nil
}

// AnnounceHost inserts or updates a known_peers row (spec.md §4.3
// "announce_host(public_key, addrs?, p2p_key?) ... if p2p_key is omitted
// on update, retain the existing one"). A nil p2pKey means "omitted": the
// existing value (zero on first insert) is retained via COALESCE against
// the pre-update row.
func (c *Cache) AnnounceHost(publicKey digest512.Key512, addrs []netutil.SocketAddress, p2pKey *digest512.Key512, now time.Time) error {
	packed := netutil.PackList(addrs)
	expire := now.Add(Expiry).UnixNano()

	var p2pBytes []byte
	if p2pKey != nil {
		p2pBytes = p2pKey[:]
	}

	_, err := c.db.Exec(`
		INSERT INTO known_peers (key, p2p_key, addrs, mtime, expire)
		VALUES (?, COALESCE(?, x''), ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			p2p_key = COALESCE(?, known_peers.p2p_key),
			addrs   = excluded.addrs,
			mtime   = excluded.mtime,
			expire  = excluded.expire`,
		publicKey[:], p2pBytes, packed, now.UnixNano(), expire,
		p2pBytes)
	if err != nil {
		return fmt.Errorf("announce host: %w: %w", err, apperrors.TransientLocal)
	}
	return nil
}

// DiscoverHost returns the cached address set for publicKey, or nil on a
// miss or an expired record (spec.md §4.3 "return the packed addresses
// ... empty on miss/expiry").
func (c *Cache) DiscoverHost(publicKey digest512.Key512, now time.Time) ([]netutil.SocketAddress, error) {
	var packed []byte
	var expire int64
	err := c.db.QueryRow(`SELECT addrs, expire FROM known_peers WHERE key = ?`, publicKey[:]).
		Scan(&packed, &expire)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discover host: %w: %w", err, apperrors.TransientLocal)
	}
	if expire < now.UnixNano() {
		return nil, nil
	}
	return netutil.UnpackList(packed), nil
}

// DiscoverHostP2PKey returns the cached p2p key for publicKey, or a zeroed
// key on a miss or expiry (spec.md §4.3).
func (c *Cache) DiscoverHostP2PKey(publicKey digest512.Key512, now time.Time) (digest512.Key512, error) {
	var p2pBytes []byte
	var expire int64
	err := c.db.QueryRow(`SELECT p2p_key, expire FROM known_peers WHERE key = ?`, publicKey[:]).
		Scan(&p2pBytes, &expire)
	if err == sql.ErrNoRows {
		return digest512.Key512{}, nil
	}
	if err != nil {
		return digest512.Key512{}, fmt.Errorf("discover host p2p key: %w: %w", err, apperrors.TransientLocal)
	}
	if expire < now.UnixNano() {
		return digest512.Key512{}, nil
	}
	var key digest512.Key512
	copy(key[:], p2pBytes)
	return key, nil
}

// PurgeExpired removes known_announcers and known_peers rows whose expiry
// has passed as of now. Lazy expiry (spec.md §4.3 discovery semantics):
// callers may invoke this periodically rather than on every lookup.
func (c *Cache) PurgeExpired(now time.Time) error {
	if _, err := c.db.Exec(`DELETE FROM known_announcers WHERE expire < ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("purge expired announcers: %w: %w", err, apperrors.TransientLocal)
	}
	if _, err := c.db.Exec(`DELETE FROM known_peers WHERE expire < ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("purge expired peers: %w: %w", err, apperrors.TransientLocal)
	}
	return nil
}
