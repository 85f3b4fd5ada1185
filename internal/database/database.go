// Package database is adhara's local key-value store: one SQLite file with a
// single kv table, versioned through PRAGMA user_version.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the key-value store backed by a SQLite file.
type DB struct {
	conn *sql.DB
	path string
}

// pragmas run on every connection before the schema is checked.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// Open opens the kv store at dbPath, creating the file and its directory on
// first use and bringing the kv schema up to date.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", dbPath, err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening kv store %s: %w", dbPath, err)
	}
	// Favorites are a read-modify-write of one row; a single connection keeps
	// those writes serial across goroutines.
	conn.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("kv store %s: %s: %w", dbPath, p, err)
		}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kv store %s: %w", dbPath, err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close releases the file.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the file backing the store.
func (db *DB) Path() string {
	return db.path
}
