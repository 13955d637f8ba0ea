package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/record"
	"github.com/cabinet-dev/cabinet/internal/schema"
)

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// renderJSON writes a JSON response with the given status
func renderJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// renderError maps the operation error taxonomy onto HTTP statuses. Access
// denials deliberately carry no detail beyond the denied field name, so the
// response never reveals whether hidden data exists or differs.
func renderError(w http.ResponseWriter, err error) {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		fields := make(map[string]interface{}, len(ve.Errors))
		for _, fe := range ve.Errors {
			fields[fe.Field] = fe.Message
		}
		renderJSON(w, http.StatusUnprocessableEntity, &ErrorResponse{
			Error:   "validation_failed",
			Message: "the request contains invalid data",
			Details: fields,
		})
		return
	}

	switch {
	case record.IsNotFound(err):
		renderJSON(w, http.StatusNotFound, &ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case acl.IsAccessDenied(err):
		renderJSON(w, http.StatusForbidden, &ErrorResponse{
			Error:   "access_denied",
			Message: err.Error(),
		})
	case record.IsConflict(err):
		renderJSON(w, http.StatusConflict, &ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case record.IsUpstreamTimeout(err):
		renderJSON(w, http.StatusGatewayTimeout, &ErrorResponse{
			Error:   "upstream_timeout",
			Message: err.Error(),
		})
	default:
		renderJSON(w, http.StatusInternalServerError, &ErrorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
	}
}
