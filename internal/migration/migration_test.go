package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitline/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mapFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, content := range files {
		out[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return out
}

func newSQLiteRunner(t *testing.T, db *sql.DB, files map[string]string) *Runner {
	t.Helper()
	runner, err := NewRunner(db, mapFS(files), DialectSQLite)
	require.NoError(t, err)
	return runner
}

func TestNewRunnerRejectsUnknownDialect(t *testing.T) {
	_, err := NewRunner(nil, fstest.MapFS{}, Dialect("mysql"))
	assert.Error(t, err)
}

func TestGetCurrentVersion(t *testing.T) {
	ctx := context.Background()
	runner := newSQLiteRunner(t, setupTestDB(t), map[string]string{
		"001_test.sql": "CREATE TABLE test (id INTEGER);",
	})

	version, err := runner.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, runner.SetVersion(ctx, 5))

	version, err = runner.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, version)
}

func TestReadMigrationFiles(t *testing.T) {
	runner := newSQLiteRunner(t, setupTestDB(t), map[string]string{
		"003_another.sql": "CREATE TABLE test2 (id INTEGER);",
		"001_init.sql":    "CREATE TABLE test1 (id INTEGER);",
		"002_update.sql":  "ALTER TABLE test1 ADD COLUMN name TEXT;",
		"README.md":       "ignored",
	})

	migrations, err := runner.ReadMigrationFiles()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "init", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "update", migrations[1].Name)
	assert.Equal(t, 3, migrations[2].Version)
	assert.Equal(t, "another", migrations[2].Name)
}

func TestApplyMigrationsFromScratch(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	runner := newSQLiteRunner(t, db, map[string]string{
		"001_init.sql":  "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);",
		"002_posts.sql": "CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER, content TEXT);",
	})

	var logged []string
	count, err := runner.ApplyMigrations(ctx, func(msg string) { logged = append(logged, msg) })
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NotEmpty(t, logged)

	version, err := runner.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	for _, table := range []string{"users", "posts"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, "table %s was not created", table)
	}
}

func TestApplyMigrationsIncremental(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	first := newSQLiteRunner(t, db, map[string]string{
		"001_init.sql": "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);",
	})
	count, err := first.ApplyMigrations(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	second := newSQLiteRunner(t, db, map[string]string{
		"001_init.sql":  "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);",
		"002_posts.sql": "CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER);",
	})
	count, err = second.ApplyMigrations(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	version, err := second.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestApplyMigrationsNoOp(t *testing.T) {
	ctx := context.Background()
	runner := newSQLiteRunner(t, setupTestDB(t), map[string]string{
		"001_init.sql": "CREATE TABLE users (id INTEGER PRIMARY KEY);",
	})

	_, err := runner.ApplyMigrations(ctx, nil)
	require.NoError(t, err)

	count, err := runner.ApplyMigrations(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMigrationRollbackOnError(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	runner := newSQLiteRunner(t, db, map[string]string{
		"001_init.sql": `
			CREATE TABLE users (id INTEGER PRIMARY KEY);
			THIS IS INVALID SQL;
		`,
	})

	_, err := runner.ApplyMigrations(ctx, nil)
	require.Error(t, err)

	version, err := runner.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='users'").Scan(&n))
	assert.Equal(t, 0, n, "table should not exist after failed migration")
}

func TestValidateVersionNewerDatabase(t *testing.T) {
	ctx := context.Background()
	runner := newSQLiteRunner(t, setupTestDB(t), map[string]string{
		"001_init.sql": "CREATE TABLE users (id INTEGER PRIMARY KEY);",
	})

	require.NoError(t, runner.SetVersion(ctx, 10))

	assert.Error(t, runner.ValidateVersion(ctx))

	_, err := runner.ApplyMigrations(ctx, nil)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	runner := newSQLiteRunner(t, setupTestDB(t), map[string]string{
		"001_init.sql":   "CREATE TABLE users (id INTEGER);",
		"003_posts.sql":  "CREATE TABLE posts (id INTEGER);",
		"002_update.sql": "ALTER TABLE users ADD COLUMN name TEXT;",
	})

	require.NoError(t, runner.SetVersion(ctx, 1))

	st, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Current)
	assert.Equal(t, 3, st.Latest)
	require.Len(t, st.Pending, 2)
	assert.Equal(t, 2, st.Pending[0].Version)
}

func TestMigrationFilenameValidation(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "missing underscore",
			files:   map[string]string{"001init.sql": "SELECT 1;"},
			wantErr: "invalid migration filename format",
		},
		{
			name:    "zero version",
			files:   map[string]string{"000_init.sql": "SELECT 1;"},
			wantErr: "version must be at least 1",
		},
		{
			name: "duplicate version",
			files: map[string]string{
				"001_init.sql":  "SELECT 1;",
				"001_other.sql": "SELECT 1;",
			},
			wantErr: "duplicate migration version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newSQLiteRunner(t, setupTestDB(t), tt.files)
			_, err := runner.ReadMigrationFiles()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmbeddedSQLiteSchema(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	sub, err := migrations.SQLite()
	require.NoError(t, err)
	runner, err := NewRunner(db, sub, DialectSQLite)
	require.NoError(t, err)

	_, err = runner.ApplyMigrations(ctx, nil)
	require.NoError(t, err)

	for _, table := range []string{"habits", "streaks", "streak_runs", "settings"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, "table %s was not created", table)
	}

	// completion flag and timestamp must agree
	_, err = db.Exec(`INSERT INTO habits (id, user_uid, title, description, due_date, timezone, recurrence_type, is_complete, created_at)
		VALUES ('h1', 'u1', 't', 'd', '2024-03-10T22:00:00.000000000Z', 'UTC', 'daily', 1, '2024-03-01T00:00:00.000000000Z')`)
	assert.Error(t, err)
}
