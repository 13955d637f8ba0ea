package record

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/schema"
	"github.com/cabinet-dev/cabinet/internal/store"
)

// CreateRecord runs the write pipeline for a new record. Fields the principal
// cannot write are silently dropped before validation; the response payload is
// projected back to the principal's readable fields.
func (s *Service) CreateRecord(ctx context.Context, project, collection string, p acl.Principal, input map[string]interface{}) (*store.Record, error) {
	spec, ok := s.registry.Collection(project, collection)
	if !ok {
		return nil, fmt.Errorf("%w: collection %s/%s", ErrNotFound, project, collection)
	}
	if !acl.CanAccessCollection(p, spec) {
		return nil, &acl.AccessDeniedError{Collection: collection, Operation: acl.OperationWrite}
	}

	payload := acl.FilterWritable(p, spec, input)

	if err := schema.CheckPayload(spec, spec.Fields, payload, true); err != nil {
		return nil, err
	}
	if err := s.checkRelations(ctx, spec, payload); err != nil {
		return nil, err
	}

	if spec.Singleton {
		s.singletonMu.Lock()
		defer s.singletonMu.Unlock()
		existing, _, err := s.store.Fetch(ctx, &store.Query{Project: project, Collection: collection, Limit: 1})
		if err != nil {
			return nil, convertStoreError(err)
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("%w: singleton %s already has a record", ErrConflict, collection)
		}
	}

	// Stop before Persist when the caller has already gone away
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := s.store.Insert(ctx, &store.Record{
		Project:    project,
		Collection: collection,
		Payload:    payload,
	})
	if err != nil {
		return nil, convertStoreError(err)
	}

	s.syncLinks(ctx, spec, rec.ID, nil, payload)
	if s.cache != nil {
		s.cache.Invalidate(ctx, project, collection, rec.ID)
	}

	rec.Payload = acl.ProjectPayload(p, spec, rec.Payload)
	return rec, nil
}

// UpdateRecord runs the write pipeline for an existing record. Snapshot is
// attempted strictly before Persist so it never reflects post-mutation state.
// For singleton collections an empty id targets the sole record.
func (s *Service) UpdateRecord(ctx context.Context, project, collection, id string, p acl.Principal, input map[string]interface{}) (*store.Record, error) {
	spec, ok := s.registry.Collection(project, collection)
	if !ok {
		return nil, fmt.Errorf("%w: collection %s/%s", ErrNotFound, project, collection)
	}
	if !acl.CanAccessCollection(p, spec) {
		return nil, &acl.AccessDeniedError{Collection: collection, Operation: acl.OperationWrite}
	}

	current, err := s.fetchOne(ctx, spec, id)
	if err != nil {
		return nil, err
	}

	payload := acl.FilterWritable(p, spec, input)

	if err := schema.CheckPayload(spec, spec.Fields, payload, false); err != nil {
		return nil, err
	}
	if err := s.checkRelations(ctx, spec, payload); err != nil {
		return nil, err
	}

	if err := s.takeSnapshot(ctx, spec, current, p); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, project, collection, current.ID, payload)
	if err != nil {
		return nil, convertStoreError(err)
	}

	s.syncLinks(ctx, spec, current.ID, current.Payload, payload)
	if s.cache != nil {
		s.cache.Invalidate(ctx, project, collection, current.ID)
	}

	updated.Payload = acl.ProjectPayload(p, spec, updated.Payload)
	return updated, nil
}

// checkRelations verifies referential existence for every relation value in
// the payload. A dangling relation is a validation error, never a silent
// link.
func (s *Service) checkRelations(ctx context.Context, spec *schema.CollectionSpec, payload map[string]interface{}) error {
	ve := &schema.ValidationError{}
	for name, value := range payload {
		f, ok := spec.Field(name)
		if !ok || f.Type != schema.TypeRelation || value == nil {
			continue
		}
		targetID, ok := value.(string)
		if !ok {
			continue // shape already rejected by CheckPayload
		}
		exists, err := s.store.Exists(ctx, spec.Project, f.Target, targetID)
		if err != nil {
			return convertStoreError(err)
		}
		if !exists {
			ve.Add(name, fmt.Sprintf("target record %s does not exist in %s", targetID, f.Target))
		}
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// takeSnapshot writes a pre-mutation copy of the record payload when the
// collection's policy asks for it. Failure is non-fatal by default but always
// surfaced as a warning; WithSnapshotFailureFatal escalates it.
func (s *Service) takeSnapshot(ctx context.Context, spec *schema.CollectionSpec, rec *store.Record, p acl.Principal) error {
	if !spec.Snapshots.Enabled(s.snapshotDefault) {
		return nil
	}

	err := s.store.WriteSnapshot(ctx, &store.Snapshot{
		RecordID: rec.ID,
		Payload:  rec.Payload,
		Actor:    p.ID,
		TakenAt:  time.Now().UTC(),
	})
	if err == nil {
		return nil
	}
	if s.snapshotFatal {
		return fmt.Errorf("snapshot failed: %w", convertStoreError(err))
	}
	s.logger.Warn("snapshot failed, continuing with mutation",
		zap.String("collection", spec.Name),
		zap.String("record", rec.ID),
		zap.Error(err))
	return nil
}

// syncLinks reconciles relation link rows with the written payload. Link
// maintenance is best-effort bookkeeping for the relation index; failures are
// logged, not fatal.
func (s *Service) syncLinks(ctx context.Context, spec *schema.CollectionSpec, recordID string, before, after map[string]interface{}) {
	for name, value := range after {
		f, ok := spec.Field(name)
		if !ok || f.Type != schema.TypeRelation {
			continue
		}

		if prev, ok := before[name].(string); ok && prev != "" {
			if err := s.store.RemoveLink(ctx, store.Link{SourceID: recordID, Field: name, TargetID: prev}); err != nil {
				s.logger.Warn("failed to remove stale link", zap.String("field", name), zap.Error(err))
			}
		}
		if next, ok := value.(string); ok && next != "" {
			if err := s.store.CreateLink(ctx, store.Link{SourceID: recordID, Field: name, TargetID: next}); err != nil {
				s.logger.Warn("failed to create link", zap.String("field", name), zap.Error(err))
			}
		}
	}
}
