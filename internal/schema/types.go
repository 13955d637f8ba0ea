// Package schema defines the field metadata model and the declarative
// collection/action definitions that drive the runtime. A FieldSpec describes
// one typed attribute together with its validation contract, presentation
// hints, and per-role access rule; a CollectionSpec groups an ordered list of
// fields with collection-level settings. All specs are constructed once at
// load time and treated as immutable afterwards.
package schema

import "fmt"

// FieldType represents the semantic type of a field
type FieldType int

const (
	// Text types
	TypeString FieldType = iota
	TypeText

	// Numeric types
	TypeInteger
	TypeFloat

	// Boolean
	TypeBoolean

	// Time
	TypeDate

	// Choice types
	TypeEnum
	TypeMultiEnum

	// Reference types
	TypeRelation
	TypeFile

	// Structured payload
	TypeObject
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeEnum:
		return "enum"
	case TypeMultiEnum:
		return "multi_enum"
	case TypeRelation:
		return "relation"
	case TypeFile:
		return "file"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "integer":
		return TypeInteger, nil
	case "float":
		return TypeFloat, nil
	case "boolean":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "enum":
		return TypeEnum, nil
	case "multi_enum":
		return TypeMultiEnum, nil
	case "relation":
		return TypeRelation, nil
	case "file":
		return TypeFile, nil
	case "object":
		return TypeObject, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// IsText returns true if the type holds free text
func (t FieldType) IsText() bool {
	return t == TypeString || t == TypeText
}

// IsNumeric returns true if the type is a numeric type
func (t FieldType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// UIHint carries presentation-only layout metadata. The core never interprets
// it beyond round-tripping it to the rendering layer.
type UIHint struct {
	Section string `yaml:"section,omitempty" json:"section,omitempty"`
	Span    int    `yaml:"span,omitempty" json:"span,omitempty"`
}

// PermissionRule maps the read and write operations on a field to the role
// sets allowed to perform them. The defaults are asymmetric on purpose: an
// empty read set means every role permitted on the collection may read the
// field, while an empty write set means nobody may write it.
type PermissionRule struct {
	Read  []string `yaml:"read,omitempty" json:"read,omitempty"`
	Write []string `yaml:"write,omitempty" json:"write,omitempty"`
}

// FieldSpec describes one field of a collection or action form. Instances are
// built by the New*Field constructors, which validate their arguments and fail
// with a DefinitionError at load time, never at request time.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Label      string
	Required   bool
	Searchable bool

	// EnumValues is the allowed value set for enum and multi_enum fields
	EnumValues []string

	// Target is the target collection name for relation fields
	Target string

	UI          UIHint
	Permissions PermissionRule
}

// HasEnumValue returns true if v is one of the field's allowed enum values
func (f *FieldSpec) HasEnumValue(v string) bool {
	for _, ev := range f.EnumValues {
		if ev == v {
			return true
		}
	}
	return false
}
