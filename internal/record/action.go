package record

import (
	"context"
	"fmt"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/schema"
)

// RunAction resolves an action, checks its role gate, validates the input
// against the action's form, and invokes the registered handler. An action
// without a handler echoes its validated input, which keeps declarative-only
// actions usable as typed inboxes.
func (s *Service) RunAction(ctx context.Context, project, name string, p acl.Principal, input map[string]interface{}) (*ActionResult, error) {
	spec, ok := s.registry.Action(project, name)
	if !ok {
		return nil, fmt.Errorf("%w: action %s/%s", ErrNotFound, project, name)
	}
	if !acl.CanRunAction(p, spec) {
		return nil, &acl.AccessDeniedError{Collection: name, Operation: acl.OperationAction}
	}

	// Unknown input fields are explicit validation errors for actions;
	// there is no field-level write rule to fall back on.
	if err := schema.CheckPayload(spec, spec.Fields, input, true); err != nil {
		return nil, err
	}

	handler, ok := s.actions[project+"/"+name]
	if !ok {
		return &ActionResult{Action: name, Output: input}, nil
	}

	output, err := handler(ctx, p, input)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Action: name, Output: output}, nil
}
