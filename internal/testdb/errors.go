package testdb

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned when a database is used before Start or after Stop.
var ErrNotStarted = errors.New("database is not started")

// ProvisioningError reports that a disposable database could not be brought up.
// Callers should treat it as fatal for the whole test package.
type ProvisioningError struct {
	Op  string
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("testdb: provisioning failed (%s): %v", e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// ResetError reports that a live database could not be reset.
// It is never retried; callers should fail the current test.
type ResetError struct {
	Op  string
	Err error
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("testdb: reset failed (%s): %v", e.Op, e.Err)
}

func (e *ResetError) Unwrap() error {
	return e.Err
}
