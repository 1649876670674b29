package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrStorageUnavailable marks failures caused by the backing database being
// unreachable or timing out. The store never retries on its own; retry
// policy belongs to the caller. Match with errors.Is.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrConstraintViolation marks a unique-constraint failure that escaped the
// atomic upsert path. Every memory write goes through a single
// INSERT ... ON CONFLICT statement, so under correct usage this cannot
// happen. Seeing it means a check-then-write sequence sneaked in somewhere
// and must be fixed; it is surfaced as-is, never handled.
var ErrConstraintViolation = errors.New("unique constraint violation")

// ValidationError reports a malformed memory candidate or request argument.
// During a batch upsert it applies to a single item and never aborts the
// rest of the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageUnavailableError wraps a driver failure with the operation that hit
// it. It matches ErrStorageUnavailable via errors.Is.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StorageUnavailableError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// storageErr classifies a driver error for the caller. Constraint
// violations pass through untouched so they stay distinguishable from an
// unreachable database.
func storageErr(op string, err error) error {
	if errors.Is(err, ErrConstraintViolation) {
		return err
	}
	return &StorageUnavailableError{Op: op, Err: err}
}
