// Package query translates generic filter/search/sort/pagination requests
// into a predicate the record store can evaluate. Translation runs after the
// access-control checks: a filter or sort that touches a field the principal
// cannot read fails with an AccessDeniedError rather than being silently
// dropped, so filter behavior never leaks the existence of hidden data.
package query

import (
	"fmt"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/schema"
)

// DefaultMaxPageSize is the hard page-size ceiling used when none is
// configured. Requests above the ceiling are clamped, not rejected.
const DefaultMaxPageSize = 200

// Op represents a filter operator
type Op int

const (
	OpEquals Op = iota
	OpNotEquals
	OpIn
	OpContains
	OpRange
	OpIsNull
)

// String returns the string representation of the operator
func (o Op) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpNotEquals:
		return "notEquals"
	case OpIn:
		return "in"
	case OpContains:
		return "contains"
	case OpRange:
		return "range"
	case OpIsNull:
		return "isNull"
	default:
		return "unknown"
	}
}

// ParseOp converts a string to an Op
func ParseOp(s string) (Op, error) {
	switch s {
	case "equals", "":
		return OpEquals, nil
	case "notEquals":
		return OpNotEquals, nil
	case "in":
		return OpIn, nil
	case "contains":
		return OpContains, nil
	case "range":
		return OpRange, nil
	case "isNull":
		return OpIsNull, nil
	default:
		return 0, fmt.Errorf("unknown operator: %s", s)
	}
}

// Filter is one predicate leaf: field, operator, value. Filters on the same
// request are AND-combined.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Request is the generic shape of a list call before translation
type Request struct {
	Filters  []Filter
	Search   string
	Sort     string
	SortDesc bool
	Page     int
	PageSize int

	// IncludeDeleted opts in to soft-deleted records
	IncludeDeleted bool
}

// Query is the translated predicate handed to the record store. Callers treat
// it as opaque; only the store evaluates it.
type Query struct {
	Project    string
	Collection string

	Filters []Filter

	Search       string
	SearchFields []string

	Sort     string
	SortDesc bool

	Offset int
	Limit  int

	IncludeDeleted bool
}

// Translator turns requests into store queries
type Translator struct {
	maxPageSize int
}

// NewTranslator creates a translator with the given page-size ceiling. Zero
// or negative means DefaultMaxPageSize.
func NewTranslator(maxPageSize int) *Translator {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Translator{maxPageSize: maxPageSize}
}

// Translate validates the request against the collection spec and the
// principal's field visibility, then produces the store query together with
// the set of fields the principal may read.
func (t *Translator) Translate(p acl.Principal, c *schema.CollectionSpec, req Request) (*Query, []*schema.FieldSpec, error) {
	visible := acl.ReadableFields(p, c)

	q := &Query{
		Project:        c.Project,
		Collection:     c.Name,
		IncludeDeleted: req.IncludeDeleted,
	}

	for _, f := range req.Filters {
		if err := t.checkFilter(p, c, f); err != nil {
			return nil, nil, err
		}
		q.Filters = append(q.Filters, f)
	}

	if req.Search != "" {
		q.Search = req.Search
		for _, f := range visible {
			if f.Searchable && f.Type.IsText() {
				q.SearchFields = append(q.SearchFields, f.Name)
			}
		}
	}

	if req.Sort != "" {
		if err := t.checkSort(p, c, req.Sort); err != nil {
			return nil, nil, err
		}
		q.Sort = req.Sort
		q.SortDesc = req.SortDesc
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = t.maxPageSize
	}
	if size > t.maxPageSize {
		size = t.maxPageSize
	}
	q.Offset = (page - 1) * size
	q.Limit = size

	return q, visible, nil
}

// metaField reports whether the name refers to record metadata rather than a
// declared field. Metadata is visible to anyone who passed the collection
// gate.
func metaField(name string) bool {
	return name == "id" || name == "created_at" || name == "updated_at"
}

func (t *Translator) checkFilter(p acl.Principal, c *schema.CollectionSpec, f Filter) error {
	if metaField(f.Field) {
		return checkValueShape(f)
	}

	spec, ok := c.Field(f.Field)
	if !ok || !acl.FieldReadable(p, spec) {
		// An unknown field and a hidden field answer identically
		return &acl.AccessDeniedError{Collection: c.Name, Field: f.Field, Operation: acl.OperationRead}
	}

	if err := checkOperator(f.Op, spec.Type); err != nil {
		return err
	}
	return checkValueShape(f)
}

func (t *Translator) checkSort(p acl.Principal, c *schema.CollectionSpec, field string) error {
	if metaField(field) {
		return nil
	}
	spec, ok := c.Field(field)
	if !ok || !acl.FieldReadable(p, spec) {
		return &acl.AccessDeniedError{Collection: c.Name, Field: field, Operation: acl.OperationRead}
	}
	return nil
}

// checkOperator rejects operator/type combinations the store cannot evaluate
// meaningfully. The failure is a translation-time validation error, never a
// storage error.
func checkOperator(op Op, ft schema.FieldType) error {
	switch op {
	case OpContains:
		if !ft.IsText() && ft != schema.TypeEnum && ft != schema.TypeMultiEnum {
			return operatorError(op, ft)
		}
	case OpRange:
		if !ft.IsNumeric() && ft != schema.TypeDate {
			return operatorError(op, ft)
		}
	case OpEquals, OpNotEquals, OpIn:
		if ft == schema.TypeObject {
			return operatorError(op, ft)
		}
	}
	return nil
}

func operatorError(op Op, ft schema.FieldType) error {
	ve := &schema.ValidationError{}
	ve.Add("", fmt.Sprintf("operator %s cannot be applied to %s fields", op, ft))
	return ve
}

// checkValueShape rejects structurally invalid filter values
func checkValueShape(f Filter) error {
	switch f.Op {
	case OpIn:
		if _, ok := f.Value.([]interface{}); !ok {
			ve := &schema.ValidationError{}
			ve.Add(f.Field, "in operator requires a list value")
			return ve
		}
	case OpRange:
		bounds, ok := f.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			ve := &schema.ValidationError{}
			ve.Add(f.Field, "range operator requires a [min, max] pair")
			return ve
		}
	case OpContains:
		if _, ok := f.Value.(string); !ok {
			ve := &schema.ValidationError{}
			ve.Add(f.Field, "contains operator requires a string value")
			return ve
		}
	}
	return nil
}
