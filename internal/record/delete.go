package record

import (
	"context"
	"fmt"

	"github.com/cabinet-dev/cabinet/internal/acl"
)

// DeleteRecord soft-deletes a record. The snapshot, when the collection's
// policy asks for one, is taken strictly before the delete; for singleton
// collections an empty id targets the sole record.
func (s *Service) DeleteRecord(ctx context.Context, project, collection, id string, p acl.Principal) error {
	spec, ok := s.registry.Collection(project, collection)
	if !ok {
		return fmt.Errorf("%w: collection %s/%s", ErrNotFound, project, collection)
	}
	if !acl.CanAccessCollection(p, spec) {
		return &acl.AccessDeniedError{Collection: collection, Operation: acl.OperationDelete}
	}

	current, err := s.fetchOne(ctx, spec, id)
	if err != nil {
		return err
	}

	if err := s.takeSnapshot(ctx, spec, current, p); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, project, collection, current.ID); err != nil {
		return convertStoreError(err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, project, collection, current.ID)
	}
	return nil
}
