package testdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userapi/internal/storage"
)

const fixtureSchema = `
CREATE TABLE authors (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, author_id INTEGER NOT NULL REFERENCES authors(id), title TEXT);
CREATE TABLE audit_log (id INTEGER PRIMARY KEY, message TEXT);
`

// startSQLite returns a started database holding the application schema plus
// a small author/book fixture.
func startSQLite(t *testing.T, opts ...ResetOption) *SQLiteDatabase {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "testdb.db")
	d := NewSQLite(path, opts...)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { _ = d.Stop() })

	store, err := storage.New(ctx, storage.Config{Type: storage.TypeSQLite, SQLite: storage.SQLiteConfig{Path: path}})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureSchema(ctx, store))
	require.NoError(t, store.Close())

	_, err = d.DB().ExecContext(ctx, fixtureSchema)
	require.NoError(t, err)
	return d
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO users (name, email) VALUES ('Han', 'han@test.example'), ('Leia', 'leia@test.example')`,
		`INSERT INTO authors (name) VALUES ('Ursula')`,
		`INSERT INTO books (author_id, title) VALUES (1, 'The Dispossessed'), (1, 'Lathe of Heaven')`,
		`INSERT INTO audit_log (message) VALUES ('seeded')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n))
	return n
}

func TestSQLiteResetter_Plan(t *testing.T) {
	d := startSQLite(t, ExcludeTables("audit_log"))

	plan, err := d.Resetter().Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "main", plan.Schema)
	assert.Equal(t, []string{"books", "authors", "users"}, plan.Tables)
	assert.Equal(t, []string{"audit_log", storage.SchemaMigrationsTable}, plan.Excluded)
	assert.Subset(t, plan.Sequences, []string{"authors", "books"})
	assert.NotContains(t, plan.Sequences, storage.SchemaMigrationsTable)
	assert.False(t, plan.DeferConstraints)
}

func TestSQLiteDatabase_Clean(t *testing.T) {
	ctx := context.Background()
	d := startSQLite(t, ExcludeTables("audit_log"))
	db := d.DB()
	seed(t, db)

	require.NoError(t, d.Clean(ctx))

	assert.Zero(t, count(t, db, "users"))
	assert.Zero(t, count(t, db, "books"))
	assert.Zero(t, count(t, db, "authors"))
	assert.Equal(t, 1, count(t, db, "audit_log"), "excluded table must keep its rows")
	assert.Equal(t, 1, count(t, db, storage.SchemaMigrationsTable), "schema metadata must survive")

	// identity counters restart
	res, err := db.Exec(`INSERT INTO authors (name) VALUES ('Octavia')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	res, err = db.Exec(`INSERT INTO users (name, email) VALUES ('Luke', 'luke@test.example')`)
	require.NoError(t, err)
	id, err = res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestSQLiteDatabase_CleanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := startSQLite(t)
	db := d.DB()

	// clean on an empty database
	require.NoError(t, d.Clean(ctx))

	for range 3 {
		seed(t, db)
		require.NoError(t, d.Clean(ctx))
		require.NoError(t, d.Clean(ctx))

		assert.Zero(t, count(t, db, "users"))
		assert.Zero(t, count(t, db, "books"))
		assert.Zero(t, count(t, db, "audit_log"))
		assert.Equal(t, 1, count(t, db, storage.SchemaMigrationsTable))

		var version int64
		require.NoError(t, db.QueryRow("SELECT version FROM schema_migrations").Scan(&version))
		assert.Equal(t, storage.SchemaVersion, version)
	}
}

func TestSQLiteDatabase_CleanForeignKeyCycle(t *testing.T) {
	ctx := context.Background()
	d := startSQLite(t)
	db := d.DB()

	stmts := []string{
		`CREATE TABLE alpha (id INTEGER PRIMARY KEY, beta_id INTEGER REFERENCES beta(id))`,
		`CREATE TABLE beta (id INTEGER PRIMARY KEY, alpha_id INTEGER REFERENCES alpha(id))`,
		`INSERT INTO alpha (id, beta_id) VALUES (1, NULL)`,
		`INSERT INTO beta (id, alpha_id) VALUES (1, 1)`,
		`UPDATE alpha SET beta_id = 1 WHERE id = 1`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	plan, err := d.Resetter().Plan(ctx)
	require.NoError(t, err)
	assert.True(t, plan.DeferConstraints)

	require.NoError(t, d.Clean(ctx))
	assert.Zero(t, count(t, db, "alpha"))
	assert.Zero(t, count(t, db, "beta"))
}

func TestSQLiteDatabase_Lifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "lifecycle.db")
	d := NewSQLite(path)

	assert.Equal(t, path, d.ConnectionString())
	assert.Equal(t, storage.TypeSQLite, d.StorageType())

	err := d.Clean(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, d.Start(ctx))

	var perr *ProvisioningError
	require.ErrorAs(t, d.Start(ctx), &perr, "second start must fail")

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	assert.Nil(t, d.DB())
}

func TestSQLiteDatabase_StartRequiresPath(t *testing.T) {
	var perr *ProvisioningError
	require.ErrorAs(t, NewSQLite("").Start(context.Background()), &perr)
}

func TestSQLiteDatabase_CleanBeforeSchemaExists(t *testing.T) {
	ctx := context.Background()
	d := NewSQLite(filepath.Join(t.TempDir(), "late.db"))
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { _ = d.Stop() })

	// nothing to reset yet
	require.NoError(t, d.Clean(ctx))
	plan, err := d.Resetter().Plan(ctx)
	require.NoError(t, err)
	assert.Empty(t, plan.Tables)

	db := d.DB()
	_, err = db.ExecContext(ctx, fixtureSchema)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO authors (name) VALUES ('Octavia')`)
	require.NoError(t, err)

	// the empty plan was not kept, so tables created later are reset
	require.NoError(t, d.Clean(ctx))
	assert.Zero(t, count(t, db, "authors"))

	plan, err = d.Resetter().Plan(ctx)
	require.NoError(t, err)
	assert.Contains(t, plan.Tables, "authors")
}
