package rdt

import (
	"fmt"
	"io"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/catalog"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

// Server streams a subscriber's outstanding change feed from Catalog
// (spec.md §4.5 "Server flow").
type Server struct {
	Catalog *catalog.Catalog
}

// Serve dispatches RDT operations on rw for tracker until the connection
// fails or a non-RequestChanges op arrives. Server.Serve expects the RDT
// module code to already have been consumed by the caller (the session's
// module dispatcher).
func (s *Server) Serve(rw io.ReadWriter, tracker digest512.Key512) error {
	for {
		op, err := ReadOp(rw)
		if err != nil {
			return err
		}
		if op != OpRequestChanges {
			return fmt.Errorf("unexpected rdt op %d outside RequestChanges: %w", op, apperrors.Protocol)
		}
		if err := s.handleRequestChanges(rw, tracker); err != nil {
			return err
		}
	}
}

// handleRequestChanges streams every distinct entry's changes to rw,
// waits for a per-entry ACK, then deletes the acknowledged remote_tracking
// rows (spec.md §4.5 server flow). It ends the round with a sentinel
// EntryResponse carrying EntryID=0.
func (s *Server) handleRequestChanges(rw io.ReadWriter, tracker digest512.Key512) error {
	dirty, err := s.Catalog.DirtyBlocks(tracker)
	if err != nil {
		return err
	}

	sent := map[int64]bool{catalog.RootID(): true}
	var sendParents func(id int64) error
	sendParents = func(id int64) error {
		if sent[id] {
			return nil
		}
		e, ok, err := s.Catalog.GetEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := sendParents(e.ParentID); err != nil {
			return err
		}
		if err := WriteEntryResponse(rw, entryToWire(e)); err != nil {
			return err
		}
		sent[id] = true
		return nil
	}

	i := 0
	for i < len(dirty) {
		entryID := dirty[i].EntryID
		entry, ok, err := s.Catalog.GetEntry(entryID)
		if err != nil {
			return err
		}
		if ok {
			if err := sendParents(entry.ParentID); err != nil {
				return err
			}
			if err := WriteEntryResponse(rw, entryToWire(entry)); err != nil {
				return err
			}
		} else {
			// Entry was deleted outright before the client ACKed; the
			// client still needs the entry_id to remove its mirror, so
			// send a minimal stub payload it can match by id alone (see
			// DESIGN.md's C13 entry for this resolved edge case).
			if err := WriteEntryResponse(rw, EntryResponse{EntryID: uint64(entryID)}); err != nil {
				return err
			}
		}

		for i < len(dirty) && dirty[i].EntryID == entryID {
			b := dirty[i]
			if err := WriteBlockResponse(rw, BlockResponse{BlockNo: uint64(b.BlockNo), Deleted: b.Tombstone}); err != nil {
				return err
			}
			i++
		}
		if err := WriteBlockResponse(rw, BlockResponse{Commit: true}); err != nil {
			return err
		}

		op, err := ReadOp(rw)
		if err != nil {
			return err
		}
		if op != OpACK {
			return fmt.Errorf("expected ACK after entry %d, got op %d: %w", entryID, op, apperrors.Protocol)
		}
		if err := s.Catalog.AckEntry(tracker, entryID); err != nil {
			return err
		}
	}

	return WriteEntryResponse(rw, EntryResponse{EntryID: 0})
}

func entryToWire(e catalog.Entry) EntryResponse {
	return EntryResponse{
		ParentID:  uint64(e.ParentID),
		EntryID:   uint64(e.ID),
		MtimeNS:   uint64(e.MtimeNS),
		FileSize:  uint64(e.Size),
		BlockSize: uint64(e.BlockSize),
		IsDir:     e.IsDir,
		Name:      e.Name,
	}
}
