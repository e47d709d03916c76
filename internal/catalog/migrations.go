package catalog

import (
	"database/sql"
	"fmt"
)

// migration represents a single schema migration.
type migration struct {
	version int
	up      func(tx *sql.Tx) error
}

// migrations is the ordered list of schema migrations.
var migrations = []migration{
	{
		version: 1,
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE courses (
					title       TEXT PRIMARY KEY,
					link        TEXT DEFAULT '',
					instructor  TEXT DEFAULT '',
					source_hash TEXT DEFAULT ''
				);
				CREATE TABLE lessons (
					course_title  TEXT NOT NULL REFERENCES courses(title) ON DELETE CASCADE,
					lesson_number INTEGER NOT NULL,
					title         TEXT DEFAULT '',
					link          TEXT DEFAULT '',
					PRIMARY KEY (course_title, lesson_number)
				);
				CREATE TABLE chunks (
					id            INTEGER PRIMARY KEY AUTOINCREMENT,
					course_title  TEXT NOT NULL,
					lesson_number INTEGER NOT NULL,
					chunk_index   INTEGER NOT NULL,
					content       TEXT NOT NULL
				);
				CREATE INDEX idx_chunks_course ON chunks (course_title, lesson_number);

				CREATE VIRTUAL TABLE chunks_fts USING fts5(
					content,
					content='chunks',
					content_rowid='id'
				);
				CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
					INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
				END;
				CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
					INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
				END;
			`)
			return err
		},
	},
}

// runMigrations ensures the schema_version table exists and runs any pending migrations.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (0)"); err != nil {
				return fmt.Errorf("insert initial schema version: %w", err)
			}
			current = 0
		} else {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if err := m.up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update schema version to %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
