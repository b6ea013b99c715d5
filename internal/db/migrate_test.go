package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestMigrate_CreatesDocumentsTable(t *testing.T) {
	db := openTestDB(t)

	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='documents'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "documents", name)

	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_documents_updated'`).Scan(&name)
	require.NoError(t, err)
}

func TestMigrate_RevisionDefaultsToOne(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO documents (key, body, updated_at) VALUES ('boards/alpha', '{}', '2025-06-15T10:00:00Z')`)
	require.NoError(t, err)

	var rev int
	require.NoError(t, db.QueryRow(`SELECT revision FROM documents WHERE key = 'boards/alpha'`).Scan(&rev))
	assert.Equal(t, 1, rev)
}

func TestOpenDB_CreatesParentDirectory(t *testing.T) {
	path := t.TempDir() + "/nested/dir/kanban.db"
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
