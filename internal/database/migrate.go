package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// getSchemaVersion reads the applied schema version. SQLite keeps it in
// PRAGMA user_version; PostgreSQL in a one-row schema_version table.
func (db *DB) getSchemaVersion() (int, error) {
	var version int
	if db.dialect == dialectSQLite {
		if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}

	if _, err := db.conn.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return 0, fmt.Errorf("creating schema_version: %w", err)
	}
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (db *DB) setSchemaVersion(version int) error {
	if db.dialect == dialectSQLite {
		// Outside any transaction (modernc/sqlite requirement).
		_, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	}
	if _, err := db.conn.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := db.conn.Exec("INSERT INTO schema_version (version) VALUES ($1)", version)
	return err
}

// migrate brings the database schema up to the latest version.
func (db *DB) migrate() error {
	current, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	latest := latestVersion()
	if current >= latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Printf("applying migration %d: %s", m.Version, m.Description)

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx, db.dialect); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// If we crash before this, the idempotent DDL lets the migration re-run.
		if err := db.setSchemaVersion(m.Version); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
