package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// ErrSchemaTooNew means the file was written by a newer adhara build. It is
// left untouched rather than downgraded.
var ErrSchemaTooNew = errors.New("kv schema is newer than this build")

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading kv schema version: %w", err)
	}
	return version, nil
}

// migrate applies every kv migration above the recorded user_version.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	latest := latestVersion()
	switch {
	case current > latest:
		return fmt.Errorf("%w: file is at version %d, build knows %d", ErrSchemaTooNew, current, latest)
	case current == latest:
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		log.Debug("kv schema migrated", "from", current, "to", m.Version, "step", m.Description)
		current = m.Version
	}
	return nil
}

// apply runs one migration in a transaction and then records its version.
// modernc/sqlite cannot set user_version inside the transaction, so a crash
// between the two re-runs the step; migrations must be idempotent.
func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("kv migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("kv migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kv migration %d: commit: %w", m.Version, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("kv migration %d: recording version: %w", m.Version, err)
	}
	return nil
}
