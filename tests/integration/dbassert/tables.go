//go:build integration

// Package dbassert provides PostgreSQL state assertions for integration tests.
package dbassert

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var n int
	query := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize()
	require.NoError(t, pool.QueryRow(ctx, query).Scan(&n), "failed to count rows in %s", table)
	return n
}

// AssertTableEmpty verifies that table has no rows.
func AssertTableEmpty(t *testing.T, pool *pgxpool.Pool, table string) {
	t.Helper()
	assert.Zero(t, CountRows(t, pool, table), "table %s should be empty", table)
}

// AssertSequenceRestarted verifies that the next value of sequence is its start value.
func AssertSequenceRestarted(t *testing.T, pool *pgxpool.Pool, sequence string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		lastValue int64
		isCalled  bool
	)
	query := "SELECT last_value, is_called FROM " + pgx.Identifier{sequence}.Sanitize()
	require.NoError(t, pool.QueryRow(ctx, query).Scan(&lastValue, &isCalled), "failed to read sequence %s", sequence)

	assert.False(t, isCalled, "sequence %s should not have been used since restart", sequence)
	assert.Equal(t, int64(1), lastValue, "sequence %s should restart at 1", sequence)
}
