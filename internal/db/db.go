// Package db persists run-record snapshots into sqlite so the flat table can
// be queried ad hoc after a report run. The CSV outputs remain the
// authoritative tables; the database is a convenience mirror.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the snapshot database at path. The
// schema is managed by embedded migrations; call MigrateUp before writing.
func Open(path string) (*DB, error) {
	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := sdb.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &DB{sdb}, nil
}
