package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate "duplicate column name" errors from ALTER TABLE
			// since the migration system re-runs all statements.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	// documents holds one JSON document per store key: team boards under
	// "boards/<team>" and release manifests under "manifests/<team>/<id>".
	`CREATE TABLE IF NOT EXISTS documents (
		key        TEXT PRIMARY KEY,
		body       BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`ALTER TABLE documents ADD COLUMN revision INTEGER NOT NULL DEFAULT 1`,

	`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at)`,
}
