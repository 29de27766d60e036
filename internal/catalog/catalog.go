// Package catalog is the per-directory database of spec.md §3: entries,
// block digests, remote trackers, and the dirty-block change feed between
// them. One catalog database backs one tracked directory.
package catalog

import (
	"database/sql"
	"fmt"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/sqlitedb"
)

const schema = `
CREATE TABLE IF NOT EXISTS entry (
	id         INTEGER PRIMARY KEY,
	parent_id  INTEGER NOT NULL DEFAULT 0,
	name       TEXT    NOT NULL DEFAULT '',
	is_dir     INTEGER NOT NULL DEFAULT 0,
	mtime_ns   INTEGER NOT NULL DEFAULT 0,
	size       INTEGER NOT NULL DEFAULT 0,
	block_size INTEGER NOT NULL DEFAULT 4096,
	digest     BLOB,
	is_alive   INTEGER NOT NULL DEFAULT 1,
	UNIQUE(parent_id, name)
);

CREATE TABLE IF NOT EXISTS block (
	entry_id  INTEGER NOT NULL,
	block_no  INTEGER NOT NULL,
	mtime_ns  INTEGER NOT NULL DEFAULT 0,
	digest    BLOB,
	PRIMARY KEY (entry_id, block_no)
);

CREATE TABLE IF NOT EXISTS remote_tracker (
	key BLOB PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS remote_tracking (
	entry_id    INTEGER NOT NULL,
	block_no    INTEGER NOT NULL,
	tracker_key BLOB    NOT NULL,
	tombstone   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entry_id, block_no, tracker_key)
);

CREATE TRIGGER IF NOT EXISTS entry_cascade_delete_blocks
AFTER DELETE ON entry
BEGIN
	DELETE FROM block WHERE entry_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS block_delete_tombstones
AFTER DELETE ON block
BEGIN
	INSERT INTO remote_tracking (entry_id, block_no, tracker_key, tombstone)
	SELECT old.entry_id, old.block_no, key, 1 FROM remote_tracker
	ON CONFLICT(entry_id, block_no, tracker_key)
	DO UPDATE SET tombstone = 1;
END;

CREATE TRIGGER IF NOT EXISTS tracker_insert_full_sync
AFTER INSERT ON remote_tracker
BEGIN
	INSERT INTO remote_tracking (entry_id, block_no, tracker_key, tombstone)
	SELECT entry_id, block_no, new.key, 0 FROM block
	ON CONFLICT(entry_id, block_no, tracker_key)
	DO UPDATE SET tombstone = 0;
END;

CREATE TRIGGER IF NOT EXISTS tracker_delete_clears_tracking
AFTER DELETE ON remote_tracker
BEGIN
	DELETE FROM remote_tracking WHERE tracker_key = old.key;
END;
`

// rootID is the fixed id of the root entry row (the directory itself).
const rootID int64 = 0

// Catalog is the database backing one tracked directory.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at path, seeding the root
// entry row if absent.
func Open(path string) (*Catalog, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, err
	}
	c := &Catalog{db: db}
	if err := c.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) ensureRoot() error {
	_, err := c.db.Exec(`INSERT OR IGNORE INTO entry (id, parent_id, name, is_dir, is_alive) VALUES (?, ?, '', 1, 1)`,
		rootID, rootID)
	if err != nil {
		return fmt.Errorf("seed root entry: %w: %w", err, apperrors.Fatal)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle for packages (indexer, rdt) that need
// to compose their own transactions against this catalog.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// RootID is the fixed id of the directory's own entry row.
func RootID() int64 { return rootID }

// Entry mirrors the DirectoryEntry row of spec.md §3.
type Entry struct {
	ID        int64
	ParentID  int64
	Name      string
	IsDir     bool
	MtimeNS   int64
	Size      int64
	BlockSize int64
	Digest    digest512.Key512
	HasDigest bool
	IsAlive   bool
}

// Block mirrors the BlockDigest row of spec.md §3.
type Block struct {
	EntryID int64
	BlockNo int64
	MtimeNS int64
	Digest  digest512.Key512
}

func scanEntry(row *sql.Row) (Entry, bool, error) {
	var e Entry
	var isDir, isAlive int
	var digestBytes []byte
	err := row.Scan(&e.ID, &e.ParentID, &e.Name, &isDir, &e.MtimeNS, &e.Size, &e.BlockSize, &digestBytes, &isAlive)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("scan entry: %w: %w", err, apperrors.TransientIO)
	}
	e.IsDir = isDir != 0
	e.IsAlive = isAlive != 0
	if len(digestBytes) == 64 {
		copy(e.Digest[:], digestBytes)
		e.HasDigest = true
	}
	return e, true, nil
}

const entryColumns = `id, parent_id, name, is_dir, mtime_ns, size, block_size, digest, is_alive`

// LookupChild finds the entry named name under parent, if any.
func (c *Catalog) LookupChild(parent int64, name string) (Entry, bool, error) {
	row := c.db.QueryRow(`SELECT `+entryColumns+` FROM entry WHERE parent_id = ? AND name = ?`, parent, name)
	return scanEntry(row)
}

// GetEntry loads the entry row by id.
func (c *Catalog) GetEntry(id int64) (Entry, bool, error) {
	row := c.db.QueryRow(`SELECT `+entryColumns+` FROM entry WHERE id = ?`, id)
	return scanEntry(row)
}

// Root loads the directory's own entry row.
func (c *Catalog) Root() (Entry, error) {
	e, ok, err := c.GetEntry(rootID)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("catalog missing root entry: %w", apperrors.CatalogInvariant)
	}
	return e, nil
}

// Children lists the direct children of parent.
func (c *Catalog) Children(parent int64) ([]Entry, error) {
	rows, err := c.db.Query(`SELECT `+entryColumns+` FROM entry WHERE parent_id = ? AND id != ?`, parent, rootID)
	if err != nil {
		return nil, fmt.Errorf("list children of %d: %w: %w", parent, err, apperrors.TransientIO)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var isDir, isAlive int
		var digestBytes []byte
		if err := rows.Scan(&e.ID, &e.ParentID, &e.Name, &isDir, &e.MtimeNS, &e.Size, &e.BlockSize, &digestBytes, &isAlive); err != nil {
			return nil, fmt.Errorf("scan child: %w: %w", err, apperrors.TransientIO)
		}
		e.IsDir = isDir != 0
		e.IsAlive = isAlive != 0
		if len(digestBytes) == 64 {
			copy(e.Digest[:], digestBytes)
			e.HasDigest = true
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Blocks lists the block rows of an entry, ordered by block_no.
func (c *Catalog) Blocks(entryID int64) ([]Block, error) {
	rows, err := c.db.Query(`SELECT entry_id, block_no, mtime_ns, digest FROM block WHERE entry_id = ? ORDER BY block_no`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list blocks of %d: %w: %w", entryID, err, apperrors.TransientIO)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		var digestBytes []byte
		if err := rows.Scan(&b.EntryID, &b.BlockNo, &b.MtimeNS, &digestBytes); err != nil {
			return nil, fmt.Errorf("scan block: %w: %w", err, apperrors.TransientIO)
		}
		copy(b.Digest[:], digestBytes)
		out = append(out, b)
	}
	return out, rows.Err()
}
