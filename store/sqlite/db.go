// Package sqlite is a store.Store backed by a single SQLite database with
// file contents sealed under a password-derived key.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/voidstore/storesync/logging"
)

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    path   TEXT PRIMARY KEY,
    is_dir INTEGER NOT NULL DEFAULT 0,
    size   INTEGER NOT NULL DEFAULT 0,
    nonce  BLOB,
    data   BLOB
);

CREATE TABLE IF NOT EXISTS metadata (
    path  TEXT NOT NULL REFERENCES entries(path) ON UPDATE CASCADE ON DELETE CASCADE,
    key   TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (path, key)
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

func openDB(dbPath string) (*sql.DB, error) {
	l := logging.Sub("sqlite")
	l.Info("opening store database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// One connection keeps PRAGMAs and transactions on the same handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
		l.Debug(pragma)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	l := logging.Sub("sqlite")
	var version int
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		// No meta table or no row: fresh database.
		if _, execErr := db.Exec(schema); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
		if _, execErr := db.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion); execErr != nil {
			return fmt.Errorf("set schema version: %w", execErr)
		}
		l.Info("schema created", "version", schemaVersion)
		return nil
	}

	if version < schemaVersion {
		l.Info("schema upgrading", "from", version, "to", schemaVersion)
		if version < 2 {
			if err := migrateV1toV2(db); err != nil {
				return fmt.Errorf("migrate v1→v2: %w", err)
			}
			l.Info("migrated v1→v2")
		}
	} else {
		l.Debug("schema up to date", slog.Int("version", version))
	}
	return nil
}

// migrateV1toV2 adds the size column, filled from stored plaintext sizes
// recorded in metadata by v1.
func migrateV1toV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		`ALTER TABLE entries ADD COLUMN size INTEGER NOT NULL DEFAULT 0`,
		`UPDATE entries SET size = COALESCE(
			(SELECT CAST(value AS INTEGER) FROM metadata m WHERE m.path = entries.path AND m.key = 'size'), 0)`,
		`DELETE FROM metadata WHERE key = 'size'`,
		`UPDATE meta SET value = '2' WHERE key = 'schema_version'`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return tx.Commit()
}
