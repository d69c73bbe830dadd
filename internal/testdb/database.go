// Package testdb provisions disposable databases for tests and resets their
// state between tests without recreating the schema.
package testdb

import (
	"context"
)

// Database is a datastore that tests can point the application at and wipe
// between tests. Implementations must be safe for concurrent use.
type Database interface {
	// ConnectionString returns the value the application uses to reach the
	// database: a postgres URL or a SQLite file path. It does not change after
	// the database has started.
	ConnectionString() string

	// StorageType returns the storage backend name understood by
	// internal/storage ("sqlite" or "postgresql").
	StorageType() string

	// Clean deletes all rows from every table except the schema metadata
	// tables and resets identity counters. Failures are returned as *ResetError.
	Clean(ctx context.Context) error
}
