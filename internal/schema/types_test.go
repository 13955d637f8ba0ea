package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldTypeRoundTrip(t *testing.T) {
	types := []FieldType{
		TypeString, TypeText, TypeInteger, TypeFloat, TypeBoolean,
		TypeDate, TypeEnum, TypeMultiEnum, TypeRelation, TypeFile, TypeObject,
	}
	for _, ft := range types {
		parsed, err := ParseFieldType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
	}
}

func TestParseFieldTypeUnknown(t *testing.T) {
	_, err := ParseFieldType("blob")
	assert.Error(t, err)
}

func TestEnumFieldRequiresValues(t *testing.T) {
	_, err := NewEnumField("status", nil)
	require.Error(t, err)

	defErr, ok := err.(*DefinitionError)
	require.True(t, ok)
	assert.Equal(t, "status", defErr.Field)
}

func TestMultiEnumFieldRequiresValues(t *testing.T) {
	_, err := NewMultiEnumField("tags", []string{})
	assert.Error(t, err)
}

func TestRelationFieldRequiresTarget(t *testing.T) {
	_, err := NewRelationField("owner", "")
	assert.Error(t, err)
}

func TestFieldNameMustBeIdentifier(t *testing.T) {
	for _, name := range []string{"", "with space", "1leading", "dash-ed"} {
		_, err := NewStringField(name)
		assert.Error(t, err, "name %q should be rejected", name)
	}

	f, err := NewStringField("valid_name2")
	require.NoError(t, err)
	assert.Equal(t, "valid_name2", f.Name)
}

func TestFieldOptions(t *testing.T) {
	f, err := NewStringField("title",
		WithLabel("Title"),
		WithRequired(),
		WithSearchable(),
		WithUI(UIHint{Section: "main", Span: 6}),
		WithPermissions(PermissionRule{Write: []string{"editor"}}),
	)
	require.NoError(t, err)

	assert.Equal(t, "Title", f.Label)
	assert.True(t, f.Required)
	assert.True(t, f.Searchable)
	assert.Equal(t, "main", f.UI.Section)
	assert.Equal(t, 6, f.UI.Span)
	assert.Equal(t, []string{"editor"}, f.Permissions.Write)
}

func TestEnumFieldCopiesValues(t *testing.T) {
	values := []string{"a", "b"}
	f, err := NewEnumField("status", values)
	require.NoError(t, err)

	values[0] = "mutated"
	assert.True(t, f.HasEnumValue("a"))
	assert.False(t, f.HasEnumValue("mutated"))
}

func TestCheckValue(t *testing.T) {
	enum, _ := NewEnumField("status", []string{"new", "used"})
	multi, _ := NewMultiEnumField("tags", []string{"red", "blue"})
	str, _ := NewStringField("title")
	num, _ := NewIntegerField("year")
	flt, _ := NewFloatField("price")
	boolean, _ := NewBooleanField("active")
	date, _ := NewDateField("released")
	rel, _ := NewRelationField("owner", "person")
	obj, _ := NewObjectField("meta")

	tests := []struct {
		name    string
		field   *FieldSpec
		value   interface{}
		wantErr bool
	}{
		{"string ok", str, "hello", false},
		{"string wrong type", str, 42, true},
		{"nil always ok", str, nil, false},
		{"integer ok", num, 2024, false},
		{"integer from json", num, float64(2024), false},
		{"integer fractional", num, 20.24, true},
		{"integer wrong type", num, "2024", true},
		{"float ok", flt, 19.99, false},
		{"float from int", flt, 20, false},
		{"boolean ok", boolean, true, false},
		{"boolean wrong type", boolean, "true", true},
		{"date rfc3339", date, "2026-01-02T15:04:05Z", false},
		{"date malformed", date, "02/01/2026", true},
		{"enum ok", enum, "new", false},
		{"enum outside set", enum, "vintage", true},
		{"multi enum ok", multi, []interface{}{"red"}, false},
		{"multi enum outside set", multi, []interface{}{"green"}, true},
		{"multi enum non-string element", multi, []interface{}{1}, true},
		{"relation ok", rel, "rec-1", false},
		{"relation wrong type", rel, 7, true},
		{"object ok", obj, map[string]interface{}{"k": "v"}, false},
		{"object wrong type", obj, []interface{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckValue(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
