// Package integration provides integration tests that verify database state
// after requests. These tests need Docker; the database runs in a container
// managed by internal/testdb.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
