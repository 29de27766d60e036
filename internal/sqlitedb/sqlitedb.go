// Package sqlitedb opens the three embedded databases spec.md §6 requires
// (configuration, discovery, per-directory catalog), all sharing the same
// pragmas: page_size=4096, journal_mode=WAL, auto_vacuum=FULL,
// synchronous=NORMAL (modernc.org/sqlite, pure Go, no cgo).
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// Open opens (creating if needed) the sqlite database at path with the
// pragmas spec.md §6 mandates, and runs schema against it (schema may be
// empty for databases whose caller applies DDL separately).
func Open(path string, schema string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, err, apperrors.Fatal)
	}

	pragmas := []string{
		"PRAGMA page_size=4096",
		"PRAGMA journal_mode=WAL",
		"PRAGMA auto_vacuum=FULL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w: %w", p, err, apperrors.Fatal)
		}
	}

	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema to %s: %w: %w", path, err, apperrors.Fatal)
		}
	}

	return db, nil
}
