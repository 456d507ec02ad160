package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM objectives WHERE id=? AND team_id=? AND title <> '?'`
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, `SELECT id FROM objectives WHERE id=$1 AND team_id=$2 AND title <> '?'`, Rebind(Postgres, q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"": SQLite, "sqlite": SQLite, "PGX": Postgres, "postgres": Postgres} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, dialect, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, SQLite, dialect)
	require.NoError(t, conn.Ping())
	assert.FileExists(t, Path(dir))
}

func TestWithForeignKeys(t *testing.T) {
	assert.Equal(t, "file:x.db?_pragma=foreign_keys(1)", withForeignKeys("file:x.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=foreign_keys(1)", withForeignKeys("file:x.db?mode=rwc"))
	assert.Equal(t, "file:x.db?_pragma=foreign_keys(0)", withForeignKeys("file:x.db?_pragma=foreign_keys(0)"))
}

func TestOpenSQLiteCustomDSNEnforcesForeignKeys(t *testing.T) {
	dsn := fmt.Sprintf("file:%s", filepath.Join(t.TempDir(), "custom.db"))
	conn, _, err := Open(Config{DSN: dsn})
	require.NoError(t, err)
	defer conn.Close()
	var on int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)
}
