package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"userapi/internal/storage"
)

// SQLiteDatabase is a file-backed SQLite database. It needs no Docker, which
// makes it the default backend for package-level tests.
type SQLiteDatabase struct {
	path string
	opts []ResetOption

	mu       sync.Mutex
	sqlDB    *sql.DB
	resetter *Resetter
}

// NewSQLite returns an unstarted SQLiteDatabase stored at path.
func NewSQLite(path string, opts ...ResetOption) *SQLiteDatabase {
	return &SQLiteDatabase{path: path, opts: opts}
}

// Start creates the database file and opens the harness's own connection.
func (d *SQLiteDatabase) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sqlDB != nil {
		return &ProvisioningError{Op: "start", Err: fmt.Errorf("already started")}
	}
	if d.path == "" {
		return &ProvisioningError{Op: "start", Err: fmt.Errorf("database path is required")}
	}

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return &ProvisioningError{Op: "create directory", Err: err}
	}

	sqlDB, err := sql.Open(storage.SQLiteDriverName, storage.SQLiteDSN(d.path))
	if err != nil {
		return &ProvisioningError{Op: "open", Err: err}
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return &ProvisioningError{Op: "ping", Err: err}
	}

	d.sqlDB = sqlDB
	d.resetter = NewSQLiteResetter(sqlDB, d.opts...)
	return nil
}

// Stop closes the connection. The file is left for the caller to remove.
// It is safe to call more than once.
func (d *SQLiteDatabase) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetter = nil
	if d.sqlDB == nil {
		return nil
	}
	err := d.sqlDB.Close()
	d.sqlDB = nil
	return err
}

// ConnectionString returns the database file path.
func (d *SQLiteDatabase) ConnectionString() string {
	return d.path
}

// StorageType implements Database.
func (d *SQLiteDatabase) StorageType() string {
	return storage.TypeSQLite
}

// DB returns the harness's own connection, or nil when not started.
func (d *SQLiteDatabase) DB() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sqlDB
}

// Resetter returns the resetter bound to this database, or nil when not started.
func (d *SQLiteDatabase) Resetter() *Resetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetter
}

// Clean implements Database. The table list is captured on the first Clean
// that finds any tables; tables created after that are not reset, so create
// the schema before the first Clean that matters.
func (d *SQLiteDatabase) Clean(ctx context.Context) error {
	resetter := d.Resetter()
	if resetter == nil {
		return &ResetError{Op: "reset", Err: ErrNotStarted}
	}
	return resetter.Reset(ctx)
}
