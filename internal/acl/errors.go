package acl

import (
	"errors"
	"fmt"
)

// ErrAccessDenied is the sentinel for every access-control denial
var ErrAccessDenied = errors.New("access denied")

// AccessDeniedError carries enough structure to identify the denied operation
// without leaking anything about hidden data. It never echoes field values,
// and a denial on a hidden field reads the same whether or not the field
// exists.
type AccessDeniedError struct {
	Collection string
	Field      string
	Operation  Operation
}

// Error implements the error interface
func (e *AccessDeniedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("access denied: %s on %s.%s", e.Operation, e.Collection, e.Field)
	}
	return fmt.Sprintf("access denied: %s on %s", e.Operation, e.Collection)
}

// Unwrap makes the error match ErrAccessDenied via errors.Is
func (e *AccessDeniedError) Unwrap() error {
	return ErrAccessDenied
}

// IsAccessDenied returns true if the error is an access-control denial
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
