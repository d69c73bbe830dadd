//go:build integration

package dbassert

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// UserRow mirrors a row of the users table.
type UserRow struct {
	ID    int64
	Name  string
	Email string
}

// SchemaMigrationRow mirrors a row of the schema_migrations table.
type SchemaMigrationRow struct {
	Version int64
	Dirty   bool
}

// QueryUsers returns every user ordered by id.
func QueryUsers(t *testing.T, pool *pgxpool.Pool) []UserRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := pool.Query(ctx, `SELECT id, name, email FROM users ORDER BY id ASC`)
	require.NoError(t, err, "failed to query users")
	defer rows.Close()

	var users []UserRow
	for rows.Next() {
		var u UserRow
		require.NoError(t, rows.Scan(&u.ID, &u.Name, &u.Email), "failed to scan user row")
		users = append(users, u)
	}
	require.NoError(t, rows.Err(), "error iterating user rows")
	return users
}

// QuerySchemaMigrations returns the rows of the schema metadata table.
func QuerySchemaMigrations(t *testing.T, pool *pgxpool.Pool) []SchemaMigrationRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := pool.Query(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version ASC`)
	require.NoError(t, err, "failed to query schema_migrations")
	defer rows.Close()

	var out []SchemaMigrationRow
	for rows.Next() {
		var m SchemaMigrationRow
		require.NoError(t, rows.Scan(&m.Version, &m.Dirty), "failed to scan schema_migrations row")
		out = append(out, m)
	}
	require.NoError(t, rows.Err(), "error iterating schema_migrations rows")
	return out
}

// AssertUserStored verifies that a user row with the given id matches name and email.
func AssertUserStored(t *testing.T, pool *pgxpool.Pool, id int64, name, email string) {
	t.Helper()
	for _, u := range QueryUsers(t, pool) {
		if u.ID == id {
			assert.Equal(t, name, u.Name, "user %d name", id)
			assert.Equal(t, email, u.Email, "user %d email", id)
			return
		}
	}
	t.Errorf("user %d not found in users table", id)
}
