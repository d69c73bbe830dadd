package testdb

import (
	"context"
	"database/sql"
	"slices"
	"strings"
)

const sqliteTablesQuery = `
SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`

const sqliteForeignKeysQuery = `
SELECT m.name, fk."table"
FROM sqlite_master m
JOIN pragma_foreign_key_list(m.name) fk
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'`

// Only AUTOINCREMENT tables keep a counter in sqlite_sequence; the row
// appears on first insert, so the table definition is checked instead.
const sqliteSequencesQuery = `
SELECT name FROM sqlite_master
WHERE type = 'table' AND upper(sql) LIKE '%AUTOINCREMENT%'
ORDER BY name`

type sqliteDialect struct{}

func (sqliteDialect) schema() string {
	return "main"
}

func (sqliteDialect) tables(ctx context.Context, db *sql.DB, _ string) ([]string, error) {
	return queryNames(ctx, db, sqliteTablesQuery)
}

func (sqliteDialect) foreignKeys(ctx context.Context, db *sql.DB, _ string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, sqliteForeignKeysQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.References); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// sequences returns table names; a SQLite counter is keyed by its table.
func (sqliteDialect) sequences(ctx context.Context, db *sql.DB, _ string, tables []string) ([]string, error) {
	names, err := queryNames(ctx, db, sqliteSequencesQuery)
	if err != nil {
		return nil, err
	}
	var sequences []string
	for _, name := range names {
		if slices.Contains(tables, name) {
			sequences = append(sequences, name)
		}
	}
	return sequences, nil
}

func (sqliteDialect) resetStatements(plan ResetPlan) []string {
	stmts := make([]string, 0, len(plan.Tables)+2)
	if plan.DeferConstraints {
		// Reset automatically at commit.
		stmts = append(stmts, "PRAGMA defer_foreign_keys = ON")
	}
	for _, table := range plan.Tables {
		stmts = append(stmts, "DELETE FROM "+quoteIdent(plan.Schema, table))
	}
	if len(plan.Sequences) > 0 {
		literals := make([]string, len(plan.Sequences))
		for i, name := range plan.Sequences {
			literals[i] = "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
		stmts = append(stmts, "DELETE FROM sqlite_sequence WHERE name IN ("+strings.Join(literals, ", ")+")")
	}
	return stmts
}

func queryNames(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
