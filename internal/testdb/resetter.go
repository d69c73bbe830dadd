package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"

	"userapi/internal/storage"
)

// dialect holds the backend specific introspection queries and reset SQL.
type dialect interface {
	schema() string
	tables(ctx context.Context, db *sql.DB, schema string) ([]string, error)
	foreignKeys(ctx context.Context, db *sql.DB, schema string) ([]ForeignKey, error)
	// sequences returns the identity counters owned by the given tables.
	sequences(ctx context.Context, db *sql.DB, schema string, tables []string) ([]string, error)
	resetStatements(plan ResetPlan) []string
}

// ResetOption configures a Resetter.
type ResetOption func(*Resetter)

// ExcludeTables adds tables the resetter must never clear, on top of the
// schema metadata table.
func ExcludeTables(tables ...string) ResetOption {
	return func(r *Resetter) {
		r.excluded = append(r.excluded, tables...)
	}
}

// Resetter empties a live database and restarts its identity counters.
// The reset plan is built on first use and cached; resets are serialized.
type Resetter struct {
	db       *sql.DB
	dialect  dialect
	excluded []string

	mu   sync.Mutex
	plan *ResetPlan
}

// NewPostgresResetter returns a Resetter for the public schema of a PostgreSQL database.
func NewPostgresResetter(db *sql.DB, opts ...ResetOption) *Resetter {
	return newResetter(db, postgresDialect{}, opts)
}

// NewSQLiteResetter returns a Resetter for the main schema of a SQLite database.
func NewSQLiteResetter(db *sql.DB, opts ...ResetOption) *Resetter {
	return newResetter(db, sqliteDialect{}, opts)
}

func newResetter(db *sql.DB, d dialect, opts []ResetOption) *Resetter {
	r := &Resetter{
		db:       db,
		dialect:  d,
		excluded: []string{storage.SchemaMigrationsTable},
	}
	for _, opt := range opts {
		opt(r)
	}
	slices.Sort(r.excluded)
	r.excluded = slices.Compact(r.excluded)
	return r
}

// BuildResetPlan introspects the live schema and returns a fresh plan.
// It does not touch the cached plan.
func (r *Resetter) BuildResetPlan(ctx context.Context) (ResetPlan, error) {
	schema := r.dialect.schema()

	all, err := r.dialect.tables(ctx, r.db, schema)
	if err != nil {
		return ResetPlan{}, &ResetError{Op: "list tables", Err: err}
	}

	included := make([]string, 0, len(all))
	for _, table := range all {
		if !slices.Contains(r.excluded, table) {
			included = append(included, table)
		}
	}

	fks, err := r.dialect.foreignKeys(ctx, r.db, schema)
	if err != nil {
		return ResetPlan{}, &ResetError{Op: "list foreign keys", Err: err}
	}
	ordered, cyclic := orderTables(included, fks)

	sequences, err := r.dialect.sequences(ctx, r.db, schema, ordered)
	if err != nil {
		return ResetPlan{}, &ResetError{Op: "list sequences", Err: err}
	}
	slices.Sort(sequences)

	return ResetPlan{
		Schema:           schema,
		Tables:           ordered,
		Excluded:         slices.Clone(r.excluded),
		Sequences:        sequences,
		DeferConstraints: cyclic,
	}, nil
}

// Plan returns the cached plan, building it on first call.
// A failed build is not cached, and neither is a plan with no tables, so a
// database whose schema does not exist yet is introspected again next time.
func (r *Resetter) Plan(ctx context.Context) (ResetPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := r.planLocked(ctx)
	if err != nil {
		return ResetPlan{}, err
	}
	return plan.clone(), nil
}

func (r *Resetter) planLocked(ctx context.Context) (ResetPlan, error) {
	if r.plan != nil {
		return *r.plan, nil
	}
	plan, err := r.BuildResetPlan(ctx)
	if err != nil {
		return ResetPlan{}, err
	}
	if len(plan.Tables) > 0 {
		r.plan = &plan
	}
	return plan, nil
}

// Reset deletes every row from the planned tables and restarts their
// identity counters inside a single transaction. Running it on an already
// empty database leaves the database unchanged.
func (r *Resetter) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := r.planLocked(ctx)
	if err != nil {
		return err
	}
	if len(plan.Tables) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &ResetError{Op: "begin", Err: err}
	}

	for _, stmt := range r.dialect.resetStatements(plan) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return &ResetError{Op: "exec", Err: fmt.Errorf("%s: %w", stmt, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &ResetError{Op: "commit", Err: err}
	}
	return nil
}

// quoteIdent quotes a possibly schema-qualified identifier. Both PostgreSQL
// and SQLite accept the double-quoted form.
func quoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}
