// Package configstore persists the ConfigVariable tree of spec.md §3 in
// ~/.homeostas/homeostas.sqlite: a nested mapping from dotted name to
// Variant, each node identified by a stable 64-bit id, children of a node
// unique by (parent_id, name).
package configstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/sqlitedb"
	"github.com/GuramDuka/homeostas-go/internal/variant"
)

const schema = `
CREATE TABLE IF NOT EXISTS variable (
	id        INTEGER PRIMARY KEY,
	parent_id INTEGER NOT NULL DEFAULT 0,
	name      TEXT    NOT NULL DEFAULT '',
	kind      INTEGER NOT NULL DEFAULT 0,
	v_bool    INTEGER,
	v_int64   INTEGER,
	v_float64 REAL,
	v_text    TEXT,
	v_bytes   BLOB,
	UNIQUE(parent_id, name)
);
INSERT OR IGNORE INTO variable (id, parent_id, name, kind) VALUES (0, 0, '', 0);
`

// rootID is the fixed id of the tree root. The root row is its own parent
// with the empty name, so it occupies the (0, "") pair itself: an empty
// path segment directly under the root resolves to the root.
const rootID int64 = 0

// Store is the configuration tree backed by a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the configuration database at path.
func Open(path string) (*Store, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get resolves dotted name to a Variant, returning ok=false if any segment
// of the path does not exist.
func (s *Store) Get(name string) (variant.Variant, bool, error) {
	id, ok, err := s.resolve(name, false)
	if err != nil || !ok {
		return variant.Null(), false, err
	}
	return s.load(id)
}

// Set stores v at dotted name, creating any missing intermediate nodes.
func (s *Store) Set(name string, v variant.Variant) error {
	id, _, err := s.resolve(name, true)
	if err != nil {
		return err
	}
	return s.store(id, v)
}

// Delete removes the node at dotted name and all of its descendants
// (ON DELETE CASCADE is not declared since SQLite enforces it only with
// foreign keys pointing at parent_id, which this schema does not declare
// to keep the root's self-referential row legal — deletion walks
// recursively instead).
func (s *Store) Delete(name string) error {
	id, ok, err := s.resolve(name, false)
	if err != nil || !ok {
		return err
	}
	return s.deleteRecursive(id)
}

// Children lists the direct child names of dotted name ("" for the root).
func (s *Store) Children(name string) ([]string, error) {
	parent := rootID
	if name != "" {
		id, ok, err := s.resolve(name, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		parent = id
	}

	rows, err := s.db.Query(`SELECT name FROM variable WHERE parent_id = ? AND id != ?`, parent, rootID)
	if err != nil {
		return nil, fmt.Errorf("list children of %q: %w: %w", name, err, apperrors.TransientIO)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan child name: %w: %w", err, apperrors.TransientIO)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// resolve walks the dotted path from the root, returning the leaf node id.
// If create is true, missing segments are inserted as null nodes.
func (s *Store) resolve(name string, create bool) (int64, bool, error) {
	id := rootID
	if name == "" {
		return id, true, nil
	}

	for _, seg := range strings.Split(name, ".") {
		var childID int64
		err := s.db.QueryRow(`SELECT id FROM variable WHERE parent_id = ? AND name = ?`, id, seg).Scan(&childID)
		switch {
		case err == sql.ErrNoRows:
			if !create {
				return 0, false, nil
			}
			childID, err = s.insertChild(id, seg)
			if err != nil {
				return 0, false, err
			}
		case err != nil:
			return 0, false, fmt.Errorf("resolve %q: %w: %w", name, err, apperrors.TransientIO)
		}
		id = childID
	}

	return id, true, nil
}

func (s *Store) insertChild(parent int64, name string) (int64, error) {
	for {
		candidate := int64(randomNonzero())
		_, err := s.db.Exec(`INSERT INTO variable (id, parent_id, name, kind) VALUES (?, ?, ?, 0)`,
			candidate, parent, name)
		if err == nil {
			return candidate, nil
		}
		if isUniqueViolation(err) {
			// Either the id collided (retry with a new one) or the
			// (parent,name) pair already exists (another writer raced
			// us) — re-read in the latter case.
			var existing int64
			lookupErr := s.db.QueryRow(`SELECT id FROM variable WHERE parent_id = ? AND name = ?`, parent, name).Scan(&existing)
			if lookupErr == nil {
				return existing, nil
			}
			continue
		}
		return 0, fmt.Errorf("insert %q under %d: %w: %w", name, parent, err, apperrors.TransientIO)
	}
}

func (s *Store) deleteRecursive(id int64) error {
	rows, err := s.db.Query(`SELECT id FROM variable WHERE parent_id = ? AND id != ?`, id, rootID)
	if err != nil {
		return fmt.Errorf("list children for delete: %w: %w", err, apperrors.TransientIO)
	}
	var children []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return fmt.Errorf("scan child for delete: %w: %w", err, apperrors.TransientIO)
		}
		children = append(children, c)
	}
	rows.Close()

	for _, c := range children {
		if err := s.deleteRecursive(c); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(`DELETE FROM variable WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node %d: %w: %w", id, err, apperrors.TransientIO)
	}
	return nil
}
