package testdb

import (
	"context"
	"database/sql"
	"slices"
)

const postgresTablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`

const postgresForeignKeysQuery = `
SELECT child.relname, parent.relname
FROM pg_constraint con
JOIN pg_class child ON child.oid = con.conrelid
JOIN pg_class parent ON parent.oid = con.confrelid
JOIN pg_namespace ns ON ns.oid = child.relnamespace
WHERE con.contype = 'f' AND ns.nspname = $1`

// Sequences owned by a column (serial: deptype 'a', identity: deptype 'i').
const postgresSequencesQuery = `
SELECT tbl.relname, seq.relname
FROM pg_class seq
JOIN pg_namespace ns ON ns.oid = seq.relnamespace
JOIN pg_depend dep ON dep.objid = seq.oid
	AND dep.classid = 'pg_class'::regclass
	AND dep.refclassid = 'pg_class'::regclass
JOIN pg_class tbl ON tbl.oid = dep.refobjid
WHERE seq.relkind = 'S' AND dep.deptype IN ('a', 'i') AND ns.nspname = $1
ORDER BY seq.relname`

type postgresDialect struct{}

func (postgresDialect) schema() string {
	return "public"
}

func (postgresDialect) tables(ctx context.Context, db *sql.DB, schema string) ([]string, error) {
	rows, err := db.QueryContext(ctx, postgresTablesQuery, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (postgresDialect) foreignKeys(ctx context.Context, db *sql.DB, schema string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, postgresForeignKeysQuery, schema)
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

func (postgresDialect) sequences(ctx context.Context, db *sql.DB, schema string, tables []string) ([]string, error) {
	rows, err := db.QueryContext(ctx, postgresSequencesQuery, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sequences []string
	for rows.Next() {
		var table, sequence string
		if err := rows.Scan(&table, &sequence); err != nil {
			return nil, err
		}
		if slices.Contains(tables, table) {
			sequences = append(sequences, sequence)
		}
	}
	return sequences, rows.Err()
}

func (postgresDialect) resetStatements(plan ResetPlan) []string {
	stmts := make([]string, 0, len(plan.Tables)+len(plan.Sequences)+1)
	if plan.DeferConstraints {
		// Skips foreign key triggers for the rest of the transaction.
		stmts = append(stmts, "SET LOCAL session_replication_role = replica")
	}
	for _, table := range plan.Tables {
		stmts = append(stmts, "DELETE FROM "+quoteIdent(plan.Schema, table))
	}
	for _, sequence := range plan.Sequences {
		stmts = append(stmts, "ALTER SEQUENCE "+quoteIdent(plan.Schema, sequence)+" RESTART")
	}
	return stmts
}
