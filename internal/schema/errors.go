package schema

import (
	"fmt"
	"strings"
)

// DefinitionError describes a problem with a declarative definition unit. It
// is produced at load time, collected by the loader, and never aborts the
// whole registry build.
type DefinitionError struct {
	// Path is the source path of the definition unit, when known
	Path string

	// Collection is the collection or action name, when known
	Collection string

	// Field is the offending field name, when the error is field-scoped
	Field string

	Reason string
}

// Error implements the error interface
func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("definition error")
	if e.Path != "" {
		fmt.Fprintf(&b, " in %s", e.Path)
	}
	if e.Collection != "" {
		fmt.Fprintf(&b, " (%s", e.Collection)
		if e.Field != "" {
			fmt.Fprintf(&b, ".%s", e.Field)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// ValidationError contains one or more value validation failures for a record
// or action input
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a validation failure on a specific field
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s: %s", ve.Errors[0].Field, ve.Errors[0].Message)
	default:
		return fmt.Sprintf("validation failed: %d errors", len(ve.Errors))
	}
}

// Add appends a field error
func (ve *ValidationError) Add(field, message string) {
	ve.Errors = append(ve.Errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if at least one field error was recorded
func (ve *ValidationError) HasErrors() bool {
	return len(ve.Errors) > 0
}
