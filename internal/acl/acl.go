// Package acl implements the field-level access control engine. Every
// decision is a pure function of the principal's role set and the loaded
// specs, so evaluations are side-effect free and safe to run concurrently.
//
// The defaults are deliberately asymmetric: within a collection the principal
// may already access, a field with no read rule is readable by everyone, while
// a field with no write rule is writable by no one. Accidental over-exposure
// is far more common on reads, so reads default open and writes default
// closed.
package acl

import (
	"github.com/cabinet-dev/cabinet/internal/schema"
)

// Principal is the authenticated actor issuing a request, represented by an
// opaque role set. The runtime only consumes principals; it never issues them.
type Principal struct {
	ID    string
	Roles []string
}

// HasRole returns true if the principal holds the role
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAny returns true if the principal holds at least one of the roles
func (p Principal) HasAny(roles []string) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// Operation represents the kind of access being requested
type Operation int

const (
	// OperationRead covers list and get
	OperationRead Operation = iota
	// OperationWrite covers create and update
	OperationWrite
	// OperationDelete covers soft deletion
	OperationDelete
	// OperationAction covers action invocation
	OperationAction
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationRead:
		return "read"
	case OperationWrite:
		return "write"
	case OperationDelete:
		return "delete"
	case OperationAction:
		return "action"
	default:
		return "unknown"
	}
}

// CanAccessCollection is the collection-level gate. A collection with no
// declared roles is open to any principal; otherwise the principal must hold
// at least one of them. A denial here short-circuits all field-level work.
func CanAccessCollection(p Principal, c *schema.CollectionSpec) bool {
	if len(c.Roles) == 0 {
		return true
	}
	return p.HasAny(c.Roles)
}

// CanRunAction is the gate for action invocation
func CanRunAction(p Principal, a *schema.ActionSpec) bool {
	if len(a.Roles) == 0 {
		return true
	}
	return p.HasAny(a.Roles)
}

// FieldReadable reports whether the principal may read the field. An empty
// read set defaults open within a permitted collection.
func FieldReadable(p Principal, f *schema.FieldSpec) bool {
	if len(f.Permissions.Read) == 0 {
		return true
	}
	return p.HasAny(f.Permissions.Read)
}

// FieldWritable reports whether the principal may write the field. Write
// access must be explicit: an empty write set denies.
func FieldWritable(p Principal, f *schema.FieldSpec) bool {
	if len(f.Permissions.Write) == 0 {
		return false
	}
	return p.HasAny(f.Permissions.Write)
}

// ReadableFields returns the subset of the collection's fields the principal
// may read, in declaration order
func ReadableFields(p Principal, c *schema.CollectionSpec) []*schema.FieldSpec {
	out := make([]*schema.FieldSpec, 0, len(c.Fields))
	for _, f := range c.Fields {
		if FieldReadable(p, f) {
			out = append(out, f)
		}
	}
	return out
}

// WritableFields returns the subset of the collection's fields the principal
// may write, in declaration order
func WritableFields(p Principal, c *schema.CollectionSpec) []*schema.FieldSpec {
	out := make([]*schema.FieldSpec, 0, len(c.Fields))
	for _, f := range c.Fields {
		if FieldWritable(p, f) {
			out = append(out, f)
		}
	}
	return out
}

// ProjectPayload strips fields the principal may not read from a record
// payload. The input map is never mutated.
func ProjectPayload(p Principal, c *schema.CollectionSpec, payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for name, value := range payload {
		f, ok := c.Field(name)
		if !ok {
			continue
		}
		if FieldReadable(p, f) {
			out[name] = value
		}
	}
	return out
}

// FilterWritable drops fields the principal may not write from a submitted
// payload. Dropped fields are never applied and never reported as an error,
// so partial-permission clients can submit a full form. Unknown field names
// are kept so schema validation can reject them explicitly.
func FilterWritable(p Principal, c *schema.CollectionSpec, input map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(input))
	for name, value := range input {
		f, ok := c.Field(name)
		if !ok {
			out[name] = value
			continue
		}
		if FieldWritable(p, f) {
			out[name] = value
		}
	}
	return out
}

// FilterCollections returns the collections the principal may access, each
// reduced to its readable fields. The loaded specs are never mutated; denied
// collections are omitted entirely.
func FilterCollections(p Principal, specs []*schema.CollectionSpec) []*schema.CollectionSpec {
	out := make([]*schema.CollectionSpec, 0, len(specs))
	for _, c := range specs {
		if !CanAccessCollection(p, c) {
			continue
		}
		readable := ReadableFields(p, c)
		if len(readable) == len(c.Fields) {
			out = append(out, c)
			continue
		}
		projected, err := schema.NewCollectionSpec(c.Project, c.Name, readable)
		if err != nil {
			continue
		}
		projected.Title = c.Title
		projected.Singleton = c.Singleton
		projected.Snapshots = c.Snapshots
		projected.Template = c.Template
		projected.Roles = append([]string(nil), c.Roles...)
		out = append(out, projected)
	}
	return out
}
