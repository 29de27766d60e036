package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/sqlitedb"
)

// InsertEntry creates a new entry row under parent with a freshly drawn id,
// redrawing while the id is in use by an entry row or a remote_tracking
// row (spec.md §3: "id is a random 64-bit value drawn until unused").
func (c *Catalog) InsertEntry(parent int64, name string, isDir bool, mtimeNS, size, blockSize int64) (int64, error) {
	for {
		id := int64(sqlitedb.RandomID64())
		var tracked int
		err := c.db.QueryRow(`SELECT count(*) FROM remote_tracking WHERE entry_id = ?`, id).Scan(&tracked)
		if err != nil {
			return 0, fmt.Errorf("check id %d against remote_tracking: %w: %w", id, err, apperrors.TransientIO)
		}
		if tracked > 0 {
			continue
		}
		_, err = c.db.Exec(
			`INSERT INTO entry (id, parent_id, name, is_dir, mtime_ns, size, block_size, is_alive) VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			id, parent, name, boolToInt(isDir), mtimeNS, size, blockSize)
		if err == nil {
			return id, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return 0, fmt.Errorf("insert entry %q under %d: %w: %w", name, parent, err, apperrors.TransientIO)
	}
}

// UpsertEntryByID creates or updates an entry row at a caller-chosen id,
// rather than drawing a random one. The remote directory tracker's client
// side (C13) uses this to mirror a remote catalog's entries under their
// own entry_id, so that later block responses (which carry no entry_id of
// their own, only the preceding EntryResponse's) stay addressable by the
// same id the server used.
func (c *Catalog) UpsertEntryByID(id, parent int64, name string, isDir bool, mtimeNS, size, blockSize int64) error {
	_, err := c.db.Exec(`
		INSERT INTO entry (id, parent_id, name, is_dir, mtime_ns, size, block_size, is_alive)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name      = excluded.name,
			is_dir    = excluded.is_dir,
			mtime_ns  = excluded.mtime_ns,
			size      = excluded.size,
			block_size = excluded.block_size,
			is_alive  = 1`,
		id, parent, name, boolToInt(isDir), mtimeNS, size, blockSize)
	if err != nil {
		return fmt.Errorf("upsert mirrored entry %d (%q): %w: %w", id, name, err, apperrors.TransientIO)
	}
	return nil
}

// TouchAlive marks an entry as alive for the current rescan pass, leaving
// everything else unchanged (the "just touch is_alive" case of spec.md
// §4.1 step 3).
func (c *Catalog) TouchAlive(id int64, alive bool) error {
	_, err := c.db.Exec(`UPDATE entry SET is_alive = ? WHERE id = ?`, boolToInt(alive), id)
	if err != nil {
		return fmt.Errorf("touch entry %d: %w: %w", id, err, apperrors.TransientIO)
	}
	return nil
}

// UpdateEntryMeta rewrites an entry's metadata and clears its digest
// (spec.md §4.1 step 3: "insert or update with the new metadata and clear
// digest").
func (c *Catalog) UpdateEntryMeta(id int64, mtimeNS, size, blockSize int64) error {
	_, err := c.db.Exec(`UPDATE entry SET mtime_ns = ?, size = ?, block_size = ?, digest = NULL, is_alive = 1 WHERE id = ?`,
		mtimeNS, size, blockSize, id)
	if err != nil {
		return fmt.Errorf("update entry %d: %w: %w", id, err, apperrors.TransientIO)
	}
	return nil
}

// SetEntryDigest writes the final content digest for an entry (the digest
// of its concatenated block digests, or the mixed root digest).
func (c *Catalog) SetEntryDigest(id int64, digest digest512.Key512) error {
	_, err := c.db.Exec(`UPDATE entry SET digest = ? WHERE id = ?`, digest[:], id)
	if err != nil {
		return fmt.Errorf("set digest for entry %d: %w: %w", id, err, apperrors.TransientIO)
	}
	return nil
}

// GetBlock loads a single block row, if present.
func (c *Catalog) GetBlock(entryID, blockNo int64) (Block, bool, error) {
	var b Block
	var digestBytes []byte
	err := c.db.QueryRow(`SELECT entry_id, block_no, mtime_ns, digest FROM block WHERE entry_id = ? AND block_no = ?`,
		entryID, blockNo).Scan(&b.EntryID, &b.BlockNo, &b.MtimeNS, &digestBytes)
	if err == sql.ErrNoRows {
		return Block{}, false, nil
	}
	if err != nil {
		return Block{}, false, fmt.Errorf("get block (%d,%d): %w: %w", entryID, blockNo, err, apperrors.TransientIO)
	}
	copy(b.Digest[:], digestBytes)
	return b, true, nil
}

// UpsertBlock writes (or rewrites) a block digest. The block_delete_tombstones
// trigger only fires on delete, so a changed block's dirty fan-out to
// subscribers is produced by MarkBlockDirty, called by the indexer
// alongside this write when the digest actually changed.
func (c *Catalog) UpsertBlock(entryID, blockNo, mtimeNS int64, digest digest512.Key512) error {
	_, err := c.db.Exec(
		`INSERT INTO block (entry_id, block_no, mtime_ns, digest) VALUES (?, ?, ?, ?)
		 ON CONFLICT(entry_id, block_no) DO UPDATE SET mtime_ns = excluded.mtime_ns, digest = excluded.digest`,
		entryID, blockNo, mtimeNS, digest[:])
	if err != nil {
		return fmt.Errorf("upsert block (%d,%d): %w: %w", entryID, blockNo, err, apperrors.TransientIO)
	}
	return nil
}

// MarkBlockDirty writes a non-tombstone remote_tracking row for every known
// tracker at (entryID, blockNo) — the direct-application-code equivalent of
// triggers 2/3 in spec.md §3, invoked when a block's digest changes outside
// of a delete (a delete is instead caught by the block_delete_tombstones
// trigger).
func (c *Catalog) MarkBlockDirty(entryID, blockNo int64) error {
	_, err := c.db.Exec(
		`INSERT INTO remote_tracking (entry_id, block_no, tracker_key, tombstone)
		 SELECT ?, ?, key, 0 FROM remote_tracker
		 ON CONFLICT(entry_id, block_no, tracker_key) DO UPDATE SET tombstone = 0`,
		entryID, blockNo)
	if err != nil {
		return fmt.Errorf("mark block (%d,%d) dirty: %w: %w", entryID, blockNo, err, apperrors.TransientIO)
	}
	return nil
}

// DeleteBlocksAbove removes block rows with block_no > lastBlockNo (the
// shrink case of spec.md §4.1 step 3); their tombstones are produced by the
// block_delete_tombstones trigger.
func (c *Catalog) DeleteBlocksAbove(entryID, lastBlockNo int64) error {
	_, err := c.db.Exec(`DELETE FROM block WHERE entry_id = ? AND block_no > ?`, entryID, lastBlockNo)
	if err != nil {
		return fmt.Errorf("delete trailing blocks of %d: %w: %w", entryID, err, apperrors.TransientIO)
	}
	return nil
}

// DeleteEntry removes an entry row; the entry_cascade_delete_blocks trigger
// removes its blocks, which in turn tombstone every tracker.
func (c *Catalog) DeleteEntry(id int64) error {
	_, err := c.db.Exec(`DELETE FROM entry WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %d: %w: %w", id, err, apperrors.TransientIO)
	}
	return nil
}

// SweepDead deletes entries whose is_alive still carries staleAlive and
// whose parent is NOT itself stale — either because the parent was
// touched this rescan, or because it is already gone (spec.md §4.1 step 4:
// "whose parent is already deleted"). A vanished subtree therefore needs
// one call per level of depth: the top of the dead subtree qualifies
// immediately, and once it is removed its children qualify on the next
// call. SweepAll loops this to convergence.
func (c *Catalog) SweepDead(staleAlive bool) (int, error) {
	res, err := c.db.Exec(
		`DELETE FROM entry
		 WHERE is_alive = ? AND id != ?
		   AND NOT EXISTS (
		       SELECT 1 FROM entry p WHERE p.id = entry.parent_id AND p.is_alive = ?
		   )`,
		boolToInt(staleAlive), rootID, boolToInt(staleAlive))
	if err != nil {
		return 0, fmt.Errorf("sweep dead entries: %w: %w", err, apperrors.CatalogInvariant)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SweepAll repeats SweepDead until it converges, removing an entire dead
// subtree of any depth in one rescan pass.
func (c *Catalog) SweepAll(staleAlive bool) (int, error) {
	total := 0
	for {
		n, err := c.SweepDead(staleAlive)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

// FlipAlive sets is_alive to newValue for every entry still carrying
// staleValue, completing the two-phase toggle of spec.md §3.
func (c *Catalog) FlipAlive(staleValue, newValue bool) error {
	_, err := c.db.Exec(`UPDATE entry SET is_alive = ? WHERE is_alive = ?`, boolToInt(newValue), boolToInt(staleValue))
	if err != nil {
		return fmt.Errorf("flip is_alive: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// ResetAliveForRescan toggles every row to alive=false at rescan start
// (spec.md §3: "all rows are toggled to 0 at rescan start").
func (c *Catalog) ResetAliveForRescan() error {
	_, err := c.db.Exec(`UPDATE entry SET is_alive = 0`)
	if err != nil {
		return fmt.Errorf("reset is_alive: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// AddRemoteTracker registers a subscriber (spec.md §3 RemoteTracker);
// triggers insert a non-tombstone remote_tracking row per existing block.
func (c *Catalog) AddRemoteTracker(key digest512.Key512) error {
	_, err := c.db.Exec(`INSERT OR IGNORE INTO remote_tracker (key) VALUES (?)`, key[:])
	if err != nil {
		return fmt.Errorf("add remote tracker: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// RemoveRemoteTracker unsubscribes a host; the tracker_delete_clears_tracking
// trigger removes its remote_tracking rows.
func (c *Catalog) RemoveRemoteTracker(key digest512.Key512) error {
	_, err := c.db.Exec(`DELETE FROM remote_tracker WHERE key = ?`, key[:])
	if err != nil {
		return fmt.Errorf("remove remote tracker: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// HasRemoteTracker reports whether key is a registered subscriber.
func (c *Catalog) HasRemoteTracker(key digest512.Key512) (bool, error) {
	var exists int
	err := c.db.QueryRow(`SELECT 1 FROM remote_tracker WHERE key = ?`, key[:]).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check remote tracker: %w: %w", err, apperrors.TransientIO)
	}
	return true, nil
}

// isUniqueViolation matches the same UNIQUE-constraint message pattern
// configstore.isUniqueViolation does; modernc.org/sqlite exports no typed
// sentinel for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
