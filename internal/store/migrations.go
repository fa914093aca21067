package store

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		message_sid TEXT,
		from_number TEXT NOT NULL,
		to_number   TEXT NOT NULL,
		body        TEXT NOT NULL,
		reply       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		error       TEXT,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		segments    INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_number, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);`,

	`ALTER TABLE messages ADD COLUMN provider TEXT;
	ALTER TABLE messages ADD COLUMN model TEXT;`,
}

// ApplyMigrations brings db up to the latest schema version.
func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the number of migrations applied.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}
