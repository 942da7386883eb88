package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// getSchemaVersion reads the applied schema version: PRAGMA user_version on
// SQLite, the schema_version table on Postgres.
func getSchemaVersion(conn *sql.DB, d Dialect) (int, error) {
	var version int
	if d == Postgres {
		if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("creating schema_version: %w", err)
		}
		err := conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
		if err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(conn *sql.DB, d Dialect, version int) error {
	if d == Postgres {
		if _, err := conn.Exec(`DELETE FROM schema_version`); err != nil {
			return err
		}
		_, err := conn.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version)
		return err
	}
	// PRAGMA does not take bind parameters.
	_, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}

// isLegacyDB returns true if a SQLite database already has the topic tables
// but no user_version. Such files predate the migration system and match
// migration 1.
func isLegacyDB(conn *sql.DB) (bool, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='topic_info'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for legacy tables: %w", err)
	}
	return count > 0, nil
}

// migrate brings the database schema up to the latest version.
func (db *DB) migrate() error {
	conn, d := db.conn, db.dialect

	current, err := getSchemaVersion(conn, d)
	if err != nil {
		return err
	}

	// Legacy DB detection: tables exist but user_version is 0.
	if current == 0 && d == SQLite {
		legacy, err := isLegacyDB(conn)
		if err != nil {
			return err
		}
		if legacy {
			slog.Info("detected legacy database, stamping as version 1")
			if err := setSchemaVersion(conn, d, 1); err != nil {
				return fmt.Errorf("stamping legacy version: %w", err)
			}
			current = 1
		}
	}

	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.Version, "description", m.Description, "dialect", string(d))

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx, d); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// Set the version outside the transaction (modernc/sqlite requirement).
		// If we crash here, the idempotent DDL lets the migration re-run.
		if err := setSchemaVersion(conn, d, m.Version); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
