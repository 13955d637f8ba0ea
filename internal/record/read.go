package record

import (
	"context"
	"fmt"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/query"
	"github.com/cabinet-dev/cabinet/internal/schema"
	"github.com/cabinet-dev/cabinet/internal/store"
)

// ListRecords executes a list call: resolve, authorize, translate, fetch,
// project. Every returned payload contains only fields the principal may
// read.
func (s *Service) ListRecords(ctx context.Context, project, collection string, p acl.Principal, req query.Request) (*Page, error) {
	spec, ok := s.registry.Collection(project, collection)
	if !ok {
		return nil, fmt.Errorf("%w: collection %s/%s", ErrNotFound, project, collection)
	}
	if !acl.CanAccessCollection(p, spec) {
		return nil, &acl.AccessDeniedError{Collection: collection, Operation: acl.OperationRead}
	}

	q, _, err := s.translator.Translate(p, spec, req)
	if err != nil {
		return nil, err
	}

	// Singleton collections never return more than one record
	if spec.Singleton {
		q.Limit = 1
		q.Offset = 0
	}

	records, total, err := s.store.Fetch(ctx, q)
	if err != nil {
		return nil, convertStoreError(err)
	}

	for _, rec := range records {
		rec.Payload = acl.ProjectPayload(p, spec, rec.Payload)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	return &Page{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: q.Limit,
	}, nil
}

// GetRecord returns one record with its payload projected to the principal's
// readable fields. For singleton collections an empty id targets the sole
// record.
func (s *Service) GetRecord(ctx context.Context, project, collection, id string, p acl.Principal) (*store.Record, error) {
	spec, ok := s.registry.Collection(project, collection)
	if !ok {
		return nil, fmt.Errorf("%w: collection %s/%s", ErrNotFound, project, collection)
	}
	if !acl.CanAccessCollection(p, spec) {
		return nil, &acl.AccessDeniedError{Collection: collection, Operation: acl.OperationRead}
	}

	rec, err := s.fetchOne(ctx, spec, id)
	if err != nil {
		return nil, err
	}

	rec.Payload = acl.ProjectPayload(p, spec, rec.Payload)
	return rec, nil
}

// fetchOne resolves a record by id, or the sole record of a singleton
// collection when id is empty. Soft-deleted records are not found.
func (s *Service) fetchOne(ctx context.Context, spec *schema.CollectionSpec, id string) (*store.Record, error) {
	if id == "" {
		if !spec.Singleton {
			return nil, fmt.Errorf("%w: record id required", ErrNotFound)
		}
		return s.singletonRecord(ctx, spec)
	}

	if s.cache != nil {
		// Clone both ways so callers projecting the payload never mutate
		// the cached copy.
		if rec, ok := s.cache.Get(ctx, spec.Project, spec.Name, id); ok {
			return rec.Clone(), nil
		}
	}

	rec, err := s.store.Get(ctx, spec.Project, spec.Name, id)
	if err != nil {
		return nil, convertStoreError(err)
	}
	if rec.Deleted {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}

	if s.cache != nil {
		s.cache.Set(ctx, rec.Clone())
	}
	return rec, nil
}

// singletonRecord returns the sole live record of a singleton collection
func (s *Service) singletonRecord(ctx context.Context, spec *schema.CollectionSpec) (*store.Record, error) {
	records, _, err := s.store.Fetch(ctx, &store.Query{
		Project:    spec.Project,
		Collection: spec.Name,
		Limit:      1,
	})
	if err != nil {
		return nil, convertStoreError(err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: singleton %s has no record", ErrNotFound, spec.Name)
	}
	return records[0], nil
}

// ListCollections returns the project's collection specs the principal may
// access, each reduced to the principal's readable fields
func (s *Service) ListCollections(ctx context.Context, project string, p acl.Principal) ([]*schema.CollectionSpec, error) {
	specs := s.registry.Collections(project)
	if len(specs) == 0 {
		if _, ok := hasProject(s.registry.Projects(), project); !ok {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, project)
		}
	}
	return acl.FilterCollections(p, specs), nil
}

func hasProject(projects []string, want string) (int, bool) {
	for i, p := range projects {
		if p == want {
			return i, true
		}
	}
	return 0, false
}
