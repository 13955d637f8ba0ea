package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/cabinet-dev/cabinet/internal/store"
)

// Request-time error taxonomy. Access denials come from the acl package and
// validation failures from the schema package; the sentinels here cover the
// rest.
var (
	// ErrNotFound is returned for an unknown project, collection, action,
	// or record id
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for singleton violations and duplicate
	// unique values
	ErrConflict = errors.New("conflict")

	// ErrUpstreamTimeout is returned when the storage collaborator timed
	// out. It is kept distinct from generic failures so callers can decide
	// whether to retry idempotent reads.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrStorage is returned for any other storage failure
	ErrStorage = errors.New("storage failure")
)

// convertStoreError maps store errors onto the orchestrator taxonomy without
// masking timeouts or cancellation
func convertStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case store.IsNotFound(err):
		return fmt.Errorf("%w: record", ErrNotFound)
	case store.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case store.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUpstreamTimeout returns true if the error is ErrUpstreamTimeout
func IsUpstreamTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}
