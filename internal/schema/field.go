package schema

import "regexp"

// fieldNameRe matches valid field identifiers
var fieldNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// FieldOption customizes a field constructed by the New*Field constructors
type FieldOption func(*FieldSpec)

// WithLabel sets the display label
func WithLabel(label string) FieldOption {
	return func(f *FieldSpec) { f.Label = label }
}

// WithRequired marks the field as required on create
func WithRequired() FieldOption {
	return func(f *FieldSpec) { f.Required = true }
}

// WithSearchable includes the field in free-text search
func WithSearchable() FieldOption {
	return func(f *FieldSpec) { f.Searchable = true }
}

// WithUI sets the presentation hints
func WithUI(hint UIHint) FieldOption {
	return func(f *FieldSpec) { f.UI = hint }
}

// WithPermissions sets the field's access rule
func WithPermissions(rule PermissionRule) FieldOption {
	return func(f *FieldSpec) { f.Permissions = rule }
}

func newField(name string, ft FieldType, opts []FieldOption) (*FieldSpec, error) {
	if !fieldNameRe.MatchString(name) {
		return nil, &DefinitionError{Field: name, Reason: "field name must be a non-empty identifier"}
	}
	f := &FieldSpec{Name: name, Type: ft}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// NewStringField constructs a short-text field
func NewStringField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeString, opts)
}

// NewTextField constructs a long-text field
func NewTextField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeText, opts)
}

// NewIntegerField constructs an integer field
func NewIntegerField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeInteger, opts)
}

// NewFloatField constructs a float field
func NewFloatField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeFloat, opts)
}

// NewBooleanField constructs a boolean field
func NewBooleanField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeBoolean, opts)
}

// NewDateField constructs a date field
func NewDateField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeDate, opts)
}

// NewEnumField constructs a single-choice field. At least one allowed value
// is required.
func NewEnumField(name string, values []string, opts ...FieldOption) (*FieldSpec, error) {
	if len(values) == 0 {
		return nil, &DefinitionError{Field: name, Reason: "enum field requires at least one value"}
	}
	f, err := newField(name, TypeEnum, opts)
	if err != nil {
		return nil, err
	}
	f.EnumValues = append([]string(nil), values...)
	return f, nil
}

// NewMultiEnumField constructs a multi-choice field. At least one allowed
// value is required.
func NewMultiEnumField(name string, values []string, opts ...FieldOption) (*FieldSpec, error) {
	if len(values) == 0 {
		return nil, &DefinitionError{Field: name, Reason: "multi_enum field requires at least one value"}
	}
	f, err := newField(name, TypeMultiEnum, opts)
	if err != nil {
		return nil, err
	}
	f.EnumValues = append([]string(nil), values...)
	return f, nil
}

// NewRelationField constructs a relation field pointing at a target collection
func NewRelationField(name, target string, opts ...FieldOption) (*FieldSpec, error) {
	if target == "" {
		return nil, &DefinitionError{Field: name, Reason: "relation field requires a target collection"}
	}
	f, err := newField(name, TypeRelation, opts)
	if err != nil {
		return nil, err
	}
	f.Target = target
	return f, nil
}

// NewFileField constructs a file-reference field
func NewFileField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeFile, opts)
}

// NewObjectField constructs a structured-object field
func NewObjectField(name string, opts ...FieldOption) (*FieldSpec, error) {
	return newField(name, TypeObject, opts)
}
