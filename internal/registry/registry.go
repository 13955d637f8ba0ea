// Package registry holds the process-wide index of loaded collection and
// action definitions. The index is built fully off to the side and installed
// with a single atomic pointer swap, so concurrent readers never observe a
// half-built registry and never take a lock.
package registry

import (
	"sync/atomic"

	"github.com/cabinet-dev/cabinet/internal/schema"
)

// Snapshot is one immutable generation of the registry. Build it with a
// Builder and install it with Registry.Install; never mutate it afterwards.
type Snapshot struct {
	generation uint64
	projects   []string

	collections map[string]map[string]*schema.CollectionSpec
	actions     map[string]map[string]*schema.ActionSpec

	// declaration order within each project, for deterministic iteration
	collectionOrder map[string][]string
	actionOrder     map[string][]string
}

// Generation returns the snapshot's generation counter
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Projects returns the project ids in load order
func (s *Snapshot) Projects() []string {
	out := make([]string, len(s.projects))
	copy(out, s.projects)
	return out
}

// Collection looks up a collection by project and name
func (s *Snapshot) Collection(project, name string) (*schema.CollectionSpec, bool) {
	c, ok := s.collections[project][name]
	return c, ok
}

// Action looks up an action by project and name
func (s *Snapshot) Action(project, name string) (*schema.ActionSpec, bool) {
	a, ok := s.actions[project][name]
	return a, ok
}

// Collections returns a project's collections in load order
func (s *Snapshot) Collections(project string) []*schema.CollectionSpec {
	names := s.collectionOrder[project]
	out := make([]*schema.CollectionSpec, 0, len(names))
	for _, n := range names {
		out = append(out, s.collections[project][n])
	}
	return out
}

// Actions returns a project's actions in load order
func (s *Snapshot) Actions(project string) []*schema.ActionSpec {
	names := s.actionOrder[project]
	out := make([]*schema.ActionSpec, 0, len(names))
	for _, n := range names {
		out = append(out, s.actions[project][n])
	}
	return out
}

// Builder accumulates specs for one snapshot. It is not safe for concurrent
// use; build a snapshot on one goroutine and install it.
type Builder struct {
	snap *Snapshot
}

// NewBuilder creates an empty snapshot builder
func NewBuilder() *Builder {
	return &Builder{
		snap: &Snapshot{
			collections:     make(map[string]map[string]*schema.CollectionSpec),
			actions:         make(map[string]map[string]*schema.ActionSpec),
			collectionOrder: make(map[string][]string),
			actionOrder:     make(map[string][]string),
		},
	}
}

func (b *Builder) ensureProject(project string) {
	if _, ok := b.snap.collections[project]; ok {
		return
	}
	b.snap.projects = append(b.snap.projects, project)
	b.snap.collections[project] = make(map[string]*schema.CollectionSpec)
	b.snap.actions[project] = make(map[string]*schema.ActionSpec)
}

// taken reports whether a name is already used within a project. Collections
// and actions share one namespace to avoid route collisions.
func (b *Builder) taken(project, name string) bool {
	if _, ok := b.snap.collections[project][name]; ok {
		return true
	}
	_, ok := b.snap.actions[project][name]
	return ok
}

// AddCollection registers a collection spec. The first registration of a name
// wins; a duplicate is rejected with a DefinitionError.
func (b *Builder) AddCollection(c *schema.CollectionSpec) error {
	b.ensureProject(c.Project)
	if b.taken(c.Project, c.Name) {
		return &schema.DefinitionError{Collection: c.Name, Reason: "name already registered in project " + c.Project}
	}
	b.snap.collections[c.Project][c.Name] = c
	b.snap.collectionOrder[c.Project] = append(b.snap.collectionOrder[c.Project], c.Name)
	return nil
}

// AddAction registers an action spec under the shared project namespace
func (b *Builder) AddAction(a *schema.ActionSpec) error {
	b.ensureProject(a.Project)
	if b.taken(a.Project, a.Name) {
		return &schema.DefinitionError{Collection: a.Name, Reason: "name already registered in project " + a.Project}
	}
	b.snap.actions[a.Project][a.Name] = a
	b.snap.actionOrder[a.Project] = append(b.snap.actionOrder[a.Project], a.Name)
	return nil
}

// Snapshot finalizes the builder. The builder must not be reused afterwards.
func (b *Builder) Snapshot() *Snapshot {
	return b.snap
}

// Registry is the process-wide handle. Readers load the current snapshot with
// a single atomic load; Install swaps in a new one.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// New creates a registry holding an empty snapshot
func New() *Registry {
	r := &Registry{}
	r.current.Store(NewBuilder().Snapshot())
	return r
}

// Install atomically replaces the current snapshot. The installed snapshot's
// generation is set to the predecessor's plus one.
func (r *Registry) Install(s *Snapshot) {
	prev := r.current.Load()
	if prev != nil {
		s.generation = prev.generation + 1
	}
	r.current.Store(s)
}

// Current returns the live snapshot
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Collection looks up a collection in the live snapshot
func (r *Registry) Collection(project, name string) (*schema.CollectionSpec, bool) {
	return r.Current().Collection(project, name)
}

// Action looks up an action in the live snapshot
func (r *Registry) Action(project, name string) (*schema.ActionSpec, bool) {
	return r.Current().Action(project, name)
}

// Collections returns a project's collections from the live snapshot
func (r *Registry) Collections(project string) []*schema.CollectionSpec {
	return r.Current().Collections(project)
}

// Actions returns a project's actions from the live snapshot
func (r *Registry) Actions(project string) []*schema.ActionSpec {
	return r.Current().Actions(project)
}

// Projects returns the project ids from the live snapshot
func (r *Registry) Projects() []string {
	return r.Current().Projects()
}

// Generation returns the live snapshot's generation counter
func (r *Registry) Generation() uint64 {
	return r.Current().Generation()
}
