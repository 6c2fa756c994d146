package sqliteutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	t.Parallel()
	db, err := OpenDB(filepath.Join(t.TempDir(), "sub", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := t.Context()

	steps := []string{
		`CREATE TABLE a (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY)`,
	}
	require.NoError(t, Migrate(ctx, db, steps[:1]))
	require.NoError(t, Migrate(ctx, db, steps))
	require.NoError(t, Migrate(ctx, db, steps), "already applied steps are skipped")

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 2, version)

	_, err = db.ExecContext(ctx, "INSERT INTO b (id) VALUES (1)")
	require.NoError(t, err)
}

func TestMigrate_FailureKeepsVersion(t *testing.T) {
	t.Parallel()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := t.Context()

	err = Migrate(ctx, db, []string{`CREATE TABLE ok (id INTEGER)`, `NOT SQL`})
	require.ErrorContains(t, err, "migration 2")

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)
}
