package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// Get returns the value stored under key. The boolean is false when the key
// has never been written.
func (db *DB) Get(key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (db *DB) Set(key, value string) error {
	_, err := db.conn.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(key string) error {
	if _, err := db.conn.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Stats contains aggregate database statistics.
type Stats struct {
	Keys          int
	Bytes         int
	SchemaVersion int
	LastWrite     string
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	var lastWrite sql.NullString
	err := db.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0), MAX(updated_at) FROM kv",
	).Scan(&s.Keys, &s.Bytes, &lastWrite)
	if err != nil {
		return nil, err
	}
	s.LastWrite = lastWrite.String

	v, err := getSchemaVersion(db.conn)
	if err != nil {
		return nil, err
	}
	s.SchemaVersion = v
	return s, nil
}
