// Package rdt implements the remote directory tracker wire protocol of
// spec.md §4.5: a server that streams a subscriber's outstanding change
// feed, and a client that mirrors it into a local catalog.
package rdt

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// ModuleRDT is the one-byte module code a client sends once per session
// before issuing RDT operation codes (spec.md §4.5 "client sends a
// one-byte module code (RDT = 1)").
const ModuleRDT byte = 1

// Op is an RDT operation code.
type Op uint8

const (
	OpRequestChanges Op = iota + 1
	OpEntryResponse
	OpBlockResponse
	OpACK
)

// EntryResponse mirrors spec.md §4.5's EntryResponse payload. An EntryID
// of 0 is the end-of-round sentinel this implementation uses to tell the
// client no further entries remain (see DESIGN.md's C13 entry: the
// upstream prototype this is grounded on left round termination
// unspecified).
type EntryResponse struct {
	ParentID  uint64
	EntryID   uint64
	MtimeNS   uint64
	FileSize  uint64
	BlockSize uint64
	IsDir     bool
	Name      string
}

// BlockResponse mirrors spec.md §4.5's BlockResponse payload. BlockNo=0,
// Commit=true marks the end of the current entry's block stream.
type BlockResponse struct {
	BlockNo uint64
	Deleted bool
	Commit  bool
}

// WriteModuleCode writes the one-byte RDT module code.
func WriteModuleCode(w io.Writer) error {
	if _, err := w.Write([]byte{ModuleRDT}); err != nil {
		return fmt.Errorf("write rdt module code: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// ReadModuleCode reads the one-byte module code preceding RDT operations.
func ReadModuleCode(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read rdt module code: %w: %w", err, apperrors.TransientIO)
	}
	return b[0], nil
}

// WriteRequestChanges sends the zero-payload RequestChanges op.
func WriteRequestChanges(w io.Writer) error {
	return writeOp(w, OpRequestChanges)
}

// WriteACK sends the zero-payload ACK op.
func WriteACK(w io.Writer) error {
	return writeOp(w, OpACK)
}

func writeOp(w io.Writer, op Op) error {
	if _, err := w.Write([]byte{byte(op)}); err != nil {
		return fmt.Errorf("write rdt op %d: %w: %w", op, err, apperrors.TransientIO)
	}
	return nil
}

// ReadOp reads the next one-byte operation code.
func ReadOp(r io.Reader) (Op, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read rdt op code: %w: %w", err, apperrors.TransientIO)
	}
	return Op(b[0]), nil
}

// WriteEntryResponse writes the OpEntryResponse op code followed by e's
// payload: parent_id:u64, entry_id:u64, mtime:u64, file_size:u64,
// block_size:u64, is_dir:u8, name:string-NUL (spec.md §4.5, little-endian
// throughout to match the rest of this codebase's on-disk integers).
func WriteEntryResponse(w io.Writer, e EntryResponse) error {
	if err := writeOp(w, OpEntryResponse); err != nil {
		return err
	}
	fields := []uint64{e.ParentID, e.EntryID, e.MtimeNS, e.FileSize, e.BlockSize}
	for _, f := range fields {
		if err := writeUint64(w, f); err != nil {
			return err
		}
	}
	isDir := byte(0)
	if e.IsDir {
		isDir = 1
	}
	if _, err := w.Write([]byte{isDir}); err != nil {
		return fmt.Errorf("write entry response is_dir: %w: %w", err, apperrors.TransientIO)
	}
	if _, err := io.WriteString(w, e.Name); err != nil {
		return fmt.Errorf("write entry response name: %w: %w", err, apperrors.TransientIO)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("write entry response name terminator: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// ReadEntryPayload reads an EntryResponse payload (the OpEntryResponse op
// code itself must already have been consumed by the caller's dispatch
// loop via ReadOp).
func ReadEntryPayload(r io.Reader) (EntryResponse, error) {
	var e EntryResponse
	fields := make([]*uint64, 5)
	fields[0], fields[1], fields[2], fields[3], fields[4] = &e.ParentID, &e.EntryID, &e.MtimeNS, &e.FileSize, &e.BlockSize
	for _, f := range fields {
		v, err := readUint64(r)
		if err != nil {
			return EntryResponse{}, err
		}
		*f = v
	}
	var isDir [1]byte
	if _, err := io.ReadFull(r, isDir[:]); err != nil {
		return EntryResponse{}, fmt.Errorf("read entry response is_dir: %w: %w", err, apperrors.TransientIO)
	}
	e.IsDir = isDir[0] != 0

	name, err := readNULString(r)
	if err != nil {
		return EntryResponse{}, err
	}
	e.Name = name
	return e, nil
}

// WriteBlockResponse writes the OpBlockResponse op code followed by b's
// payload: block_no:u64, deleted:u8, commit:u8.
func WriteBlockResponse(w io.Writer, b BlockResponse) error {
	if err := writeOp(w, OpBlockResponse); err != nil {
		return err
	}
	if err := writeUint64(w, b.BlockNo); err != nil {
		return err
	}
	deleted, commit := byte(0), byte(0)
	if b.Deleted {
		deleted = 1
	}
	if b.Commit {
		commit = 1
	}
	if _, err := w.Write([]byte{deleted, commit}); err != nil {
		return fmt.Errorf("write block response flags: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

// ReadBlockPayload reads a BlockResponse payload (the OpBlockResponse op
// code itself must already have been consumed via ReadOp).
func ReadBlockPayload(r io.Reader) (BlockResponse, error) {
	blockNo, err := readUint64(r)
	if err != nil {
		return BlockResponse{}, err
	}
	var flags [2]byte
	if _, err := io.ReadFull(r, flags[:]); err != nil {
		return BlockResponse{}, fmt.Errorf("read block response flags: %w: %w", err, apperrors.TransientIO)
	}
	return BlockResponse{BlockNo: blockNo, Deleted: flags[0] != 0, Commit: flags[1] != 0}, nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write uint64 field: %w: %w", err, apperrors.TransientIO)
	}
	return nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read uint64 field: %w: %w", err, apperrors.TransientIO)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// readNULString reads bytes up to and excluding a trailing NUL, one byte
// at a time via io.ReadFull so it never buffers ahead into bytes that
// belong to the next wire field (r may be a raw net.Conn shared with
// other readers of the same stream).
func readNULString(r io.Reader) (string, error) {
	var out []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", fmt.Errorf("read NUL-terminated string: %w: %w", err, apperrors.TransientIO)
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
}
