package record

import (
	"context"

	"go.uber.org/zap"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/schema"
	"github.com/cabinet-dev/cabinet/internal/store"
)

// RecordContext builds the stable shape handed to the templating
// collaborator: the projected record payload plus a summary for every
// readable relation field that currently points at a live target.
func (s *Service) RecordContext(ctx context.Context, project, collection string, rec *store.Record, p acl.Principal) (map[string]interface{}, error) {
	spec, ok := s.registry.Collection(project, collection)
	if !ok {
		return nil, ErrNotFound
	}

	out := map[string]interface{}{
		"id":         rec.ID,
		"collection": collection,
		"payload":    acl.ProjectPayload(p, spec, rec.Payload),
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}

	relations := make(map[string]interface{})
	for _, f := range spec.Fields {
		if f.Type != schema.TypeRelation || !acl.FieldReadable(p, f) {
			continue
		}
		targetID, ok := rec.Payload[f.Name].(string)
		if !ok || targetID == "" {
			continue
		}
		summary, err := s.relationSummary(ctx, spec.Project, f, targetID, p)
		if err != nil {
			s.logger.Warn("failed to resolve relation summary",
				zap.String("field", f.Name), zap.Error(err))
			continue
		}
		if summary != nil {
			relations[f.Name] = summary
		}
	}
	if len(relations) > 0 {
		out["relations"] = relations
	}

	return out, nil
}

// relationSummary resolves the target record and reduces it to a stable
// summary: id, target collection, and the target's readable payload
func (s *Service) relationSummary(ctx context.Context, project string, f *schema.FieldSpec, targetID string, p acl.Principal) (map[string]interface{}, error) {
	targetSpec, ok := s.registry.Collection(project, f.Target)
	if !ok {
		return nil, nil
	}
	if !acl.CanAccessCollection(p, targetSpec) {
		return nil, nil
	}

	target, err := s.store.Get(ctx, project, f.Target, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, convertStoreError(err)
	}
	if target.Deleted {
		return nil, nil
	}

	return map[string]interface{}{
		"id":         target.ID,
		"collection": f.Target,
		"payload":    acl.ProjectPayload(p, targetSpec, target.Payload),
	}, nil
}
