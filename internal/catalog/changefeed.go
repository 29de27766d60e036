package catalog

import (
	"fmt"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

// DirtyBlock is one row of a subscriber's change feed: a changed or deleted
// block of a known entry (spec.md §4.1 "Change feed (per subscriber)").
type DirtyBlock struct {
	EntryID   int64
	BlockNo   int64
	Tombstone bool
}

// DirtyBlocks returns tracker's outstanding change feed, ordered by
// (entry_id, block_no) as spec.md §5 requires ("server outputs are
// strictly ordered by (entry_id, block_no)").
func (c *Catalog) DirtyBlocks(tracker digest512.Key512) ([]DirtyBlock, error) {
	rows, err := c.db.Query(
		`SELECT entry_id, block_no, tombstone FROM remote_tracking
		 WHERE tracker_key = ? ORDER BY entry_id, block_no`,
		tracker[:])
	if err != nil {
		return nil, fmt.Errorf("query change feed: %w: %w", err, apperrors.TransientIO)
	}
	defer rows.Close()

	var out []DirtyBlock
	for rows.Next() {
		var d DirtyBlock
		var tomb int
		if err := rows.Scan(&d.EntryID, &d.BlockNo, &tomb); err != nil {
			return nil, fmt.Errorf("scan change feed row: %w: %w", err, apperrors.TransientIO)
		}
		d.Tombstone = tomb != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// AckEntry deletes the remote_tracking rows for every block of entryID
// owed to tracker, committing the server-side dirty window once the client
// has ACKed the entry (spec.md §4.5 "Server flow").
func (c *Catalog) AckEntry(tracker digest512.Key512, entryID int64) error {
	_, err := c.db.Exec(`DELETE FROM remote_tracking WHERE tracker_key = ? AND entry_id = ?`, tracker[:], entryID)
	if err != nil {
		return fmt.Errorf("ack entry %d: %w: %w", entryID, err, apperrors.TransientIO)
	}
	return nil
}
