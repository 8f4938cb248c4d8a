package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					template_name TEXT NOT NULL,
					ontology_version TEXT NOT NULL,
					status TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS classification_results (
					session_id TEXT NOT NULL,
					line_item_id TEXT NOT NULL,
					category_id TEXT,
					confidence REAL DEFAULT 0,
					strategy TEXT,
					rationale TEXT,
					ontology_version TEXT NOT NULL,
					candidates TEXT,
					classified_at DATETIME,
					PRIMARY KEY (session_id, line_item_id),
					FOREIGN KEY (session_id) REFERENCES sessions(id)
				)`,

				`CREATE TABLE IF NOT EXISTS assignments (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					line_item_id TEXT,
					source_id TEXT,
					cell_address TEXT NOT NULL,
					value REAL NOT NULL,
					source_order INTEGER DEFAULT 0,
					discarded INTEGER DEFAULT 0,
					src_page INTEGER DEFAULT 0,
					src_row INTEGER DEFAULT 0,
					FOREIGN KEY (session_id) REFERENCES sessions(id)
				)`,
				`CREATE INDEX idx_assignments_session ON assignments(session_id)`,

				`CREATE TABLE IF NOT EXISTS conflicts (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					type TEXT NOT NULL,
					severity TEXT NOT NULL,
					cell_address TEXT,
					assignment_ids TEXT,
					suggestions TEXT,
					state TEXT NOT NULL,
					resolution TEXT,
					FOREIGN KEY (session_id) REFERENCES sessions(id)
				)`,
				`CREATE INDEX idx_conflicts_session ON conflicts(session_id)`,

				`CREATE TABLE IF NOT EXISTS unmapped_items (
					session_id TEXT NOT NULL,
					line_item_id TEXT NOT NULL,
					PRIMARY KEY (session_id, line_item_id),
					FOREIGN KEY (session_id) REFERENCES sessions(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Index conflicts by state for open-conflict listings",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_conflicts_state ON conflicts(session_id, state)`)
			return err
		},
	},
}

// Migrate applies all pending migrations to the database.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
		current = migration.Version
	}

	// A database from a newer build cannot be used safely.
	if current != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version %d, expected %d", current, ExpectedSchemaVersion)
	}

	return nil
}
