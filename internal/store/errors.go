package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common store error types
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique constraint or duplicate id is
	// violated
	ErrConflict = errors.New("conflict")

	// ErrTimeout is returned when the storage backend did not answer
	// within the caller's deadline
	ErrTimeout = errors.New("storage timeout")
)

// StorageError wraps a backend failure that is neither a not-found, a
// conflict, nor a timeout
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying backend error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConvertError maps backend-specific errors onto the store taxonomy. Timeouts
// are kept distinct so callers can decide whether to retry idempotent reads.
func ConvertError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, op)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	// PostgreSQL error codes (pgx)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Detail)
		case "57014": // query_canceled
			return fmt.Errorf("%w: %s", ErrTimeout, op)
		}
	}

	return &StorageError{Op: op, Err: err}
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTimeout returns true if the error is ErrTimeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
