// Package loader discovers declarative definition units in a trusted source
// tree and turns them into validated specs. Loading follows a partial-failure
// policy: a malformed unit is recorded as a DefinitionError and skipped, and
// the rest of the tree still loads. The loader only parses; it never installs
// anything into the registry.
//
// The expected layout is one directory per project:
//
//	<root>/<project>/collections/*.yaml
//	<root>/<project>/actions/*.yaml
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cabinet-dev/cabinet/internal/schema"
)

// Result is the outcome of one load pass: valid specs in discovery order plus
// the errors for every unit that was skipped
type Result struct {
	Collections []*schema.CollectionSpec
	Actions     []*schema.ActionSpec
	Errors      []*schema.DefinitionError
}

// Loader reads definition trees
type Loader struct {
	logger *zap.Logger
}

// New creates a loader. A nil logger disables diagnostics.
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// fieldFile is the YAML shape of one field entry
type fieldFile struct {
	Name        string                `yaml:"name"`
	Type        string                `yaml:"type"`
	Label       string                `yaml:"label"`
	Required    bool                  `yaml:"required"`
	Searchable  bool                  `yaml:"searchable"`
	Values      []string              `yaml:"values"`
	Target      string                `yaml:"target"`
	UI          schema.UIHint         `yaml:"ui"`
	Permissions schema.PermissionRule `yaml:"permissions"`
}

// collectionFile is the YAML shape of one collection definition unit
type collectionFile struct {
	Name      string      `yaml:"name"`
	Title     string      `yaml:"title"`
	Singleton bool        `yaml:"singleton"`
	Snapshots *bool       `yaml:"snapshots"`
	Template  string      `yaml:"template"`
	Roles     []string    `yaml:"roles"`
	Fields    []fieldFile `yaml:"fields"`
}

// actionFile is the YAML shape of one action definition unit
type actionFile struct {
	Name   string      `yaml:"name"`
	Title  string      `yaml:"title"`
	Roles  []string    `yaml:"roles"`
	Fields []fieldFile `yaml:"fields"`
}

// Load walks the definition tree under root. It returns an error only when
// the root itself cannot be read; everything below that is reported through
// Result.Errors.
func (l *Loader) Load(root string) (*Result, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions root: %w", err)
	}

	res := &Result{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		l.loadProject(root, entry.Name(), res)
	}

	l.logger.Info("definitions loaded",
		zap.Int("collections", len(res.Collections)),
		zap.Int("actions", len(res.Actions)),
		zap.Int("errors", len(res.Errors)))
	for _, defErr := range res.Errors {
		l.logger.Warn("definition skipped", zap.String("path", defErr.Path), zap.String("reason", defErr.Reason))
	}

	return res, nil
}

func (l *Loader) loadProject(root, project string, res *Result) {
	// Collections and actions share one name namespace per project;
	// the first registered unit wins.
	seen := make(map[string]bool)

	for _, path := range l.units(filepath.Join(root, project, "collections")) {
		spec, defErr := l.parseCollection(path, project)
		if defErr != nil {
			res.Errors = append(res.Errors, defErr)
			continue
		}
		if seen[spec.Name] {
			res.Errors = append(res.Errors, &schema.DefinitionError{
				Path:       path,
				Collection: spec.Name,
				Reason:     "name already registered in project " + project,
			})
			continue
		}
		seen[spec.Name] = true
		res.Collections = append(res.Collections, spec)
	}

	for _, path := range l.units(filepath.Join(root, project, "actions")) {
		spec, defErr := l.parseAction(path, project)
		if defErr != nil {
			res.Errors = append(res.Errors, defErr)
			continue
		}
		if seen[spec.Name] {
			res.Errors = append(res.Errors, &schema.DefinitionError{
				Path:       path,
				Collection: spec.Name,
				Reason:     "name already registered in project " + project,
			})
			continue
		}
		seen[spec.Name] = true
		res.Actions = append(res.Actions, spec)
	}
}

// units returns the definition unit paths under dir in lexical order. A
// missing directory is not an error; projects may declare only collections or
// only actions.
func (l *Loader) units(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths
}

func (l *Loader) parseCollection(path, project string) (*schema.CollectionSpec, *schema.DefinitionError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &schema.DefinitionError{Path: path, Reason: err.Error()}
	}

	var file collectionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &schema.DefinitionError{Path: path, Reason: "malformed YAML: " + err.Error()}
	}

	fields, defErr := buildFields(path, file.Name, file.Fields)
	if defErr != nil {
		return nil, defErr
	}

	spec, err := schema.NewCollectionSpec(project, file.Name, fields)
	if err != nil {
		return nil, asDefinitionError(path, err)
	}

	spec.Title = file.Title
	spec.Singleton = file.Singleton
	spec.Template = file.Template
	spec.Roles = file.Roles
	if file.Snapshots != nil {
		if *file.Snapshots {
			spec.Snapshots = schema.SnapshotOn
		} else {
			spec.Snapshots = schema.SnapshotOff
		}
	}
	return spec, nil
}

func (l *Loader) parseAction(path, project string) (*schema.ActionSpec, *schema.DefinitionError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &schema.DefinitionError{Path: path, Reason: err.Error()}
	}

	var file actionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &schema.DefinitionError{Path: path, Reason: "malformed YAML: " + err.Error()}
	}

	fields, defErr := buildFields(path, file.Name, file.Fields)
	if defErr != nil {
		return nil, defErr
	}

	spec, err := schema.NewActionSpec(project, file.Name, fields)
	if err != nil {
		return nil, asDefinitionError(path, err)
	}

	spec.Title = file.Title
	spec.Roles = file.Roles
	return spec, nil
}

// buildFields runs every field entry through its typed constructor so the
// per-type invariants are enforced at load time
func buildFields(path, owner string, entries []fieldFile) ([]*schema.FieldSpec, *schema.DefinitionError) {
	fields := make([]*schema.FieldSpec, 0, len(entries))
	for _, e := range entries {
		ft, err := schema.ParseFieldType(e.Type)
		if err != nil {
			return nil, &schema.DefinitionError{Path: path, Collection: owner, Field: e.Name, Reason: err.Error()}
		}

		opts := []schema.FieldOption{
			schema.WithLabel(e.Label),
			schema.WithUI(e.UI),
			schema.WithPermissions(e.Permissions),
		}
		if e.Required {
			opts = append(opts, schema.WithRequired())
		}
		if e.Searchable {
			opts = append(opts, schema.WithSearchable())
		}

		var f *schema.FieldSpec
		switch ft {
		case schema.TypeEnum:
			f, err = schema.NewEnumField(e.Name, e.Values, opts...)
		case schema.TypeMultiEnum:
			f, err = schema.NewMultiEnumField(e.Name, e.Values, opts...)
		case schema.TypeRelation:
			f, err = schema.NewRelationField(e.Name, e.Target, opts...)
		case schema.TypeString:
			f, err = schema.NewStringField(e.Name, opts...)
		case schema.TypeText:
			f, err = schema.NewTextField(e.Name, opts...)
		case schema.TypeInteger:
			f, err = schema.NewIntegerField(e.Name, opts...)
		case schema.TypeFloat:
			f, err = schema.NewFloatField(e.Name, opts...)
		case schema.TypeBoolean:
			f, err = schema.NewBooleanField(e.Name, opts...)
		case schema.TypeDate:
			f, err = schema.NewDateField(e.Name, opts...)
		case schema.TypeFile:
			f, err = schema.NewFileField(e.Name, opts...)
		case schema.TypeObject:
			f, err = schema.NewObjectField(e.Name, opts...)
		}
		if err != nil {
			return nil, asDefinitionError(path, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// asDefinitionError annotates a constructor error with the unit's source path
func asDefinitionError(path string, err error) *schema.DefinitionError {
	if defErr, ok := err.(*schema.DefinitionError); ok {
		defErr.Path = path
		return defErr
	}
	return &schema.DefinitionError{Path: path, Reason: err.Error()}
}
