package schema

import "regexp"

// collectionNameRe matches valid collection and action names, which double as
// API path segments
var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SnapshotPolicy controls whether mutations on a collection are preceded by a
// pre-mutation snapshot of the record payload
type SnapshotPolicy int

const (
	// SnapshotDefault defers to the runtime-wide default (on)
	SnapshotDefault SnapshotPolicy = iota
	// SnapshotOn forces snapshots for the collection
	SnapshotOn
	// SnapshotOff disables snapshots for the collection
	SnapshotOff
)

// Enabled resolves the policy against the runtime default
func (p SnapshotPolicy) Enabled(defaultOn bool) bool {
	switch p {
	case SnapshotOn:
		return true
	case SnapshotOff:
		return false
	default:
		return defaultOn
	}
}

// CollectionSpec is the declarative description of one record type: its name,
// collection-level settings, and ordered field list
type CollectionSpec struct {
	Project   string
	Name      string
	Title     string
	Singleton bool
	Snapshots SnapshotPolicy

	// Template is an opaque reference handed to the templating collaborator
	Template string

	// Roles is the set of roles permitted on the collection. An empty set
	// leaves the collection open to any authenticated principal.
	Roles []string

	Fields []*FieldSpec

	fieldIndex map[string]*FieldSpec
}

// ActionSpec is the declarative description of a server-side procedure: its
// input form and role gate. Actions share a name namespace with collections
// within a project.
type ActionSpec struct {
	Project string
	Name    string
	Title   string
	Roles   []string
	Fields  []*FieldSpec

	fieldIndex map[string]*FieldSpec
}

// NewCollectionSpec builds and structurally validates a collection definition
func NewCollectionSpec(project, name string, fields []*FieldSpec) (*CollectionSpec, error) {
	if !collectionNameRe.MatchString(name) {
		return nil, &DefinitionError{Collection: name, Reason: "collection name must match ^[a-z][a-z0-9_]*$"}
	}
	idx, err := indexFields(name, fields)
	if err != nil {
		return nil, err
	}
	return &CollectionSpec{
		Project:    project,
		Name:       name,
		Fields:     fields,
		fieldIndex: idx,
	}, nil
}

// NewActionSpec builds and structurally validates an action definition
func NewActionSpec(project, name string, fields []*FieldSpec) (*ActionSpec, error) {
	if !collectionNameRe.MatchString(name) {
		return nil, &DefinitionError{Collection: name, Reason: "action name must match ^[a-z][a-z0-9_]*$"}
	}
	idx, err := indexFields(name, fields)
	if err != nil {
		return nil, err
	}
	return &ActionSpec{
		Project:    project,
		Name:       name,
		Fields:     fields,
		fieldIndex: idx,
	}, nil
}

func indexFields(owner string, fields []*FieldSpec) (map[string]*FieldSpec, error) {
	idx := make(map[string]*FieldSpec, len(fields))
	for _, f := range fields {
		if _, dup := idx[f.Name]; dup {
			return nil, &DefinitionError{Collection: owner, Field: f.Name, Reason: "duplicate field name"}
		}
		idx[f.Name] = f
	}
	return idx, nil
}

// Field returns the field with the given name
func (c *CollectionSpec) Field(name string) (*FieldSpec, bool) {
	f, ok := c.fieldIndex[name]
	return f, ok
}

// HasField returns true if the collection declares a field with the name
func (c *CollectionSpec) HasField(name string) bool {
	_, ok := c.fieldIndex[name]
	return ok
}

// Field returns the input field with the given name
func (a *ActionSpec) Field(name string) (*FieldSpec, bool) {
	f, ok := a.fieldIndex[name]
	return f, ok
}

// HasField returns true if the action declares an input field with the name
func (a *ActionSpec) HasField(name string) bool {
	_, ok := a.fieldIndex[name]
	return ok
}
