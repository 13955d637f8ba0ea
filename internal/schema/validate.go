package schema

import (
	"fmt"
	"time"
)

// CheckValue validates a submitted value against the field's semantic type.
// Relation values are only checked for shape here; referential existence is
// the orchestrator's concern. A nil value is accepted for any type.
func CheckValue(f *FieldSpec, v interface{}) error {
	if v == nil {
		return nil
	}

	switch f.Type {
	case TypeString, TypeText, TypeFile, TypeRelation:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		return nil

	case TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return nil
		case float64:
			// JSON numbers decode as float64
			if n != float64(int64(n)) {
				return fmt.Errorf("expected integer, got %v", n)
			}
			return nil
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}

	case TypeFloat:
		switch v.(type) {
		case float64, float32, int, int64:
			return nil
		default:
			return fmt.Errorf("expected number, got %T", v)
		}

	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
		return nil

	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return nil
		case string:
			if _, err := time.Parse(time.RFC3339, d); err != nil {
				return fmt.Errorf("expected RFC 3339 date, got %q", d)
			}
			return nil
		default:
			return fmt.Errorf("expected date, got %T", v)
		}

	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if !f.HasEnumValue(s) {
			return fmt.Errorf("value %q is not in the allowed set", s)
		}
		return nil

	case TypeMultiEnum:
		values, err := stringSlice(v)
		if err != nil {
			return err
		}
		for _, s := range values {
			if !f.HasEnumValue(s) {
				return fmt.Errorf("value %q is not in the allowed set", s)
			}
		}
		return nil

	case TypeObject:
		if _, ok := v.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		return nil

	default:
		return fmt.Errorf("unsupported field type %s", f.Type)
	}
}

// stringSlice coerces a value to a slice of strings
func stringSlice(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return s, nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", e)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}

// fieldLookup is satisfied by both CollectionSpec and ActionSpec
type fieldLookup interface {
	Field(name string) (*FieldSpec, bool)
}

// CheckPayload validates every submitted field value against its declared
// type. Unknown fields and, when requireAll is set, missing required fields
// are reported as validation errors. The returned error is nil when the
// payload is clean.
func CheckPayload(spec fieldLookup, fields []*FieldSpec, payload map[string]interface{}, requireAll bool) error {
	ve := &ValidationError{}

	for name, value := range payload {
		f, ok := spec.Field(name)
		if !ok {
			ve.Add(name, "unknown field")
			continue
		}
		if err := CheckValue(f, value); err != nil {
			ve.Add(name, err.Error())
		}
	}

	if requireAll {
		for _, f := range fields {
			if !f.Required {
				continue
			}
			if v, ok := payload[f.Name]; !ok || v == nil {
				ve.Add(f.Name, "required field is missing")
			}
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}
