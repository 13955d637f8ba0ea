package web

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cabinet-dev/cabinet/internal/query"
	"github.com/cabinet-dev/cabinet/internal/schema"
)

// filterPattern matches query parameters like filter[field] and
// filter[field][op]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\](?:\[([^\]]+)\])?$`)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		renderError(w, err)
		return
	}

	page, err := s.service.ListRecords(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "collection"),
		PrincipalFromContext(r.Context()), req)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetRecord(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "collection"), chi.URLParam(r, "id"),
		PrincipalFromContext(r.Context()))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		renderError(w, err)
		return
	}

	rec, err := s.service.CreateRecord(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "collection"),
		PrincipalFromContext(r.Context()), input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		renderError(w, err)
		return
	}

	rec, err := s.service.UpdateRecord(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "collection"), chi.URLParam(r, "id"),
		PrincipalFromContext(r.Context()), input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteRecord(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "collection"), chi.URLParam(r, "id"),
		PrincipalFromContext(r.Context()))
	if err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	input, err := decodeBody(r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := s.service.RunAction(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "action"),
		PrincipalFromContext(r.Context()), input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	specs, err := s.service.ListCollections(r.Context(),
		chi.URLParam(r, "project"), PrincipalFromContext(r.Context()))
	if err != nil {
		renderError(w, err)
		return
	}

	out := make([]collectionDTO, 0, len(specs))
	for _, c := range specs {
		out = append(out, toCollectionDTO(c))
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"collections": out})
}

// decodeBody parses a JSON request body into a payload map
func decodeBody(r *http.Request) (map[string]interface{}, error) {
	var input map[string]interface{}
	if r.Body == nil || r.ContentLength == 0 {
		return map[string]interface{}{}, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		ve := &schema.ValidationError{}
		ve.Add("", "malformed JSON body")
		return nil, ve
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	return input, nil
}

// parseListRequest maps query parameters onto the generic request shape.
// Filters use filter[field]=value for equality and filter[field][op]=value
// for other operators; sort takes an optional leading "-" for descending.
func parseListRequest(r *http.Request) (query.Request, error) {
	req := query.Request{
		Search: r.URL.Query().Get("q"),
	}

	if sort := r.URL.Query().Get("sort"); sort != "" {
		if strings.HasPrefix(sort, "-") {
			req.Sort = strings.TrimPrefix(sort, "-")
			req.SortDesc = true
		} else {
			req.Sort = sort
		}
	}

	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil {
		req.PageSize = size
	}
	if r.URL.Query().Get("include_deleted") == "true" {
		req.IncludeDeleted = true
	}

	for key, values := range r.URL.Query() {
		matches := filterPattern.FindStringSubmatch(key)
		if len(matches) == 0 || len(values) == 0 {
			continue
		}

		op, err := query.ParseOp(matches[2])
		if err != nil {
			ve := &schema.ValidationError{}
			ve.Add(matches[1], err.Error())
			return req, ve
		}
		req.Filters = append(req.Filters, query.Filter{
			Field: matches[1],
			Op:    op,
			Value: filterValue(op, values[0]),
		})
	}

	return req, nil
}

// filterValue coerces the raw query string into the value shape the operator
// expects. Numeric-looking scalars become numbers so they compare against
// JSON payload values.
func filterValue(op query.Op, raw string) interface{} {
	switch op {
	case query.OpIn, query.OpRange:
		parts := strings.Split(raw, ",")
		values := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			values = append(values, coerceScalar(strings.TrimSpace(p)))
		}
		return values
	case query.OpIsNull:
		return raw != "false"
	default:
		return coerceScalar(raw)
	}
}

func coerceScalar(raw string) interface{} {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	return raw
}

// collectionDTO is the transport shape of an ACL-filtered collection spec
type collectionDTO struct {
	Name      string     `json:"name"`
	Title     string     `json:"title,omitempty"`
	Singleton bool       `json:"singleton,omitempty"`
	Fields    []fieldDTO `json:"fields"`
}

type fieldDTO struct {
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Label      string        `json:"label,omitempty"`
	Required   bool          `json:"required,omitempty"`
	Searchable bool          `json:"searchable,omitempty"`
	Values     []string      `json:"values,omitempty"`
	Target     string        `json:"target,omitempty"`
	UI         schema.UIHint `json:"ui,omitempty"`
}

func toCollectionDTO(c *schema.CollectionSpec) collectionDTO {
	dto := collectionDTO{
		Name:      c.Name,
		Title:     c.Title,
		Singleton: c.Singleton,
		Fields:    make([]fieldDTO, 0, len(c.Fields)),
	}
	for _, f := range c.Fields {
		dto.Fields = append(dto.Fields, fieldDTO{
			Name:       f.Name,
			Type:       f.Type.String(),
			Label:      f.Label,
			Required:   f.Required,
			Searchable: f.Searchable,
			Values:     f.EnumValues,
			Target:     f.Target,
			UI:         f.UI,
		})
	}
	return dto
}
