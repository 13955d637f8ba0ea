// Package record implements the record operation orchestrator: the façade
// that executes list/get/create/update/delete/runAction by composing registry
// lookup, access control, schema validation, snapshotting, and the storage
// call. Each invocation is stateless; the only shared state is the registry
// snapshot and the store handle.
package record

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/query"
	"github.com/cabinet-dev/cabinet/internal/registry"
	"github.com/cabinet-dev/cabinet/internal/store"
)

// Page is one page of a list result
type Page struct {
	Records  []*store.Record `json:"records"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// ActionResult is the outcome of an action invocation
type ActionResult struct {
	Action string      `json:"action"`
	Output interface{} `json:"output"`
}

// ActionHandler executes one registered action with its validated input
type ActionHandler func(ctx context.Context, p acl.Principal, input map[string]interface{}) (interface{}, error)

// RecordCache is the optional read-through cache consulted on GetRecord and
// invalidated on every mutation
type RecordCache interface {
	Get(ctx context.Context, project, collection, id string) (*store.Record, bool)
	Set(ctx context.Context, rec *store.Record)
	Invalidate(ctx context.Context, project, collection, id string)
}

// Service orchestrates record operations
type Service struct {
	registry   *registry.Registry
	store      store.Store
	translator *query.Translator
	logger     *zap.Logger
	cache      RecordCache

	// snapshotDefault resolves collections with SnapshotDefault policy
	snapshotDefault bool

	// snapshotFatal escalates snapshot failures to abort the surrounding
	// mutation. Off by default: durability of the mutation outranks
	// durability of its audit trail, but the warning stays observable.
	snapshotFatal bool

	// actions maps project/name to handlers, registered at startup before
	// the service starts taking requests
	actions map[string]ActionHandler

	// singletonMu serializes the existence check and insert for singleton
	// collections so concurrent creates cannot both pass the check
	singletonMu sync.Mutex
}

// Option customizes a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMaxPageSize sets the pagination ceiling
func WithMaxPageSize(n int) Option {
	return func(s *Service) { s.translator = query.NewTranslator(n) }
}

// WithSnapshotDefault sets whether collections without an explicit snapshot
// policy take snapshots
func WithSnapshotDefault(on bool) Option {
	return func(s *Service) { s.snapshotDefault = on }
}

// WithSnapshotFailureFatal escalates snapshot failures to abort the mutation
func WithSnapshotFailureFatal() Option {
	return func(s *Service) { s.snapshotFatal = true }
}

// WithCache attaches a read-through record cache
func WithCache(c RecordCache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates an orchestrator over the given registry and store
func NewService(reg *registry.Registry, st store.Store, opts ...Option) *Service {
	s := &Service{
		registry:        reg,
		store:           st,
		translator:      query.NewTranslator(0),
		logger:          zap.NewNop(),
		snapshotDefault: true,
		actions:         make(map[string]ActionHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAction binds a handler to a declared action. Call during startup,
// before the service takes requests.
func (s *Service) RegisterAction(project, name string, handler ActionHandler) error {
	if _, ok := s.registry.Action(project, name); !ok {
		return fmt.Errorf("%w: action %s/%s", ErrNotFound, project, name)
	}
	s.actions[project+"/"+name] = handler
	return nil
}
