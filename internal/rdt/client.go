package rdt

import (
	"fmt"
	"io"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/catalog"
)

// BlockWriter fetches and applies one changed or deleted block's content
// into the mirror. Block content transfer is a separate module boundary
// from the RDT metadata protocol (spec.md §4.5 "transport is out of scope
// of this core beyond the module boundary"); Client calls back into
// whatever concrete transport the caller wires up.
type BlockWriter interface {
	// WriteBlock fetches block blockNo of entryID (sized blockSize) and
	// writes it into the mirror file at blockNo*blockSize.
	WriteBlock(entryID, blockNo, blockSize uint64) error
	// Truncate cuts the mirror file for entryID at the deletion boundary
	// blockNo*blockSize (spec.md §4.5 "On a tombstone, truncate to the
	// deletion boundary").
	Truncate(entryID, blockNo, blockSize uint64) error
}

type dedupKey struct {
	EntryID, BlockNo, MtimeNS uint64
}

// Client pulls a remote directory's change feed into Mirror, a local
// catalog kept in sync with the server's (spec.md §4.5 "Client flow").
type Client struct {
	Mirror *catalog.Catalog
	Writer BlockWriter

	seen map[dedupKey]struct{}
}

// NewClient constructs a Client backed by mirror, applying block content
// through writer.
func NewClient(mirror *catalog.Catalog, writer BlockWriter) *Client {
	return &Client{Mirror: mirror, Writer: writer, seen: make(map[dedupKey]struct{})}
}

// RequestChanges issues one RequestChanges round-trip and applies every
// entry and block the server streams back, ACKing each entry as it
// completes, until the server's end-of-round sentinel arrives.
func (c *Client) RequestChanges(rw io.ReadWriter) error {
	if err := WriteRequestChanges(rw); err != nil {
		return err
	}

	op, err := ReadOp(rw)
	for {
		if err != nil {
			return err
		}
		if op != OpEntryResponse {
			return fmt.Errorf("expected EntryResponse, got op %d: %w", op, apperrors.Protocol)
		}
		var entry EntryResponse
		if entry, err = ReadEntryPayload(rw); err != nil {
			return err
		}
		if entry.EntryID == 0 {
			return nil
		}

		if err = c.applyEntry(entry); err != nil {
			return err
		}

		// A parent directory sent ahead of its file is followed directly by
		// the next EntryResponse: it carries no blocks and is not ACKed.
		if op, err = ReadOp(rw); err != nil || op == OpEntryResponse {
			continue
		}
		if err = c.readEntryBlocks(rw, entry, op); err != nil {
			return err
		}

		if err = WriteACK(rw); err != nil {
			return err
		}
		op, err = ReadOp(rw)
	}
}

// applyEntry upserts a mirror row, or deletes one if the server sent the
// "entry vanished before ACK" stub (EntryID set, everything else zero;
// see Server.handleRequestChanges).
func (c *Client) applyEntry(e EntryResponse) error {
	if e.Name == "" && e.ParentID == 0 && !e.IsDir {
		return c.Mirror.DeleteEntry(int64(e.EntryID))
	}
	return c.Mirror.UpsertEntryByID(
		int64(e.EntryID), int64(e.ParentID), e.Name, e.IsDir,
		int64(e.MtimeNS), int64(e.FileSize), int64(e.BlockSize))
}

// readEntryBlocks applies entry's blocks up to its commit marker; op is the
// opcode already read after the entry.
func (c *Client) readEntryBlocks(rw io.ReadWriter, entry EntryResponse, op Op) error {
	for {
		if op != OpBlockResponse {
			return fmt.Errorf("expected BlockResponse, got op %d: %w", op, apperrors.Protocol)
		}
		block, err := ReadBlockPayload(rw)
		if err != nil {
			return err
		}
		if block.Commit {
			return nil
		}
		if err := c.applyBlock(entry, block); err != nil {
			return err
		}
		if op, err = ReadOp(rw); err != nil {
			return err
		}
	}
}

// applyBlock deduplicates by (entry_id, block_no, mtime) — the crash-
// restart redelivery key spec.md §4.5 names — before fetching or
// truncating, since remote_tracking rows are only deleted after ACK and a
// restart between block delivery and ACK resends the whole entry.
func (c *Client) applyBlock(entry EntryResponse, b BlockResponse) error {
	key := dedupKey{EntryID: entry.EntryID, BlockNo: b.BlockNo, MtimeNS: entry.MtimeNS}
	if _, dup := c.seen[key]; dup {
		return nil
	}
	c.seen[key] = struct{}{}

	if c.Writer == nil {
		return nil
	}
	if b.Deleted {
		return c.Writer.Truncate(entry.EntryID, b.BlockNo, entry.BlockSize)
	}
	return c.Writer.WriteBlock(entry.EntryID, b.BlockNo, entry.BlockSize)
}
