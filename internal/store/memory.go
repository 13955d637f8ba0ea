package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cabinet-dev/cabinet/internal/query"
)

// MemoryStore is an in-process Store used by tests and single-binary demos.
// It evaluates the full translated query shape, including stable sorting and
// soft-delete exclusion, so orchestrator behavior is identical across
// backends.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Record // id -> record
	order     []string           // insertion order, for deterministic default ordering
	snapshots map[string][]*Snapshot
	links     map[string][]Link // sourceID -> links
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		snapshots: make(map[string][]*Snapshot),
		links:     make(map[string][]Link),
	}
}

// Fetch evaluates the query in memory
func (m *MemoryStore) Fetch(ctx context.Context, q *Query) ([]*Record, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, ConvertError("fetch", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Record
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Project != q.Project || rec.Collection != q.Collection {
			continue
		}
		if rec.Deleted && !q.IncludeDeleted {
			continue
		}
		ok, err := matchesFilters(rec, q.Filters)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		if q.Search != "" && !matchesSearch(rec, q.Search, q.SearchFields) {
			continue
		}
		matched = append(matched, rec.Clone())
	}

	sortRecords(matched, q.Sort, q.SortDesc)

	total := len(matched)
	if q.Offset >= total {
		return []*Record{}, total, nil
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > total {
		end = total
	}
	return matched[q.Offset:end], total, nil
}

// Get returns a record by id, including soft-deleted ones
func (m *MemoryStore) Get(ctx context.Context, project, collection, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, ConvertError("get", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok || rec.Project != project || rec.Collection != collection {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Exists reports whether a live record with the id exists
func (m *MemoryStore) Exists(ctx context.Context, project, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, ConvertError("exists", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	return ok && !rec.Deleted && rec.Project == project && rec.Collection == collection, nil
}

// Insert stores a new record
func (m *MemoryStore) Insert(ctx context.Context, rec *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, ConvertError("insert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := rec.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, exists := m.records[cp.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate id %s", ErrConflict, cp.ID)
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	m.records[cp.ID] = cp
	m.order = append(m.order, cp.ID)
	return cp.Clone(), nil
}

// Update merges the partial payload into the record
func (m *MemoryStore) Update(ctx context.Context, project, collection, id string, payload map[string]interface{}) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, ConvertError("update", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Deleted || rec.Project != project || rec.Collection != collection {
		return nil, ErrNotFound
	}
	for k, v := range payload {
		rec.Payload[k] = v
	}
	rec.UpdatedAt = time.Now()
	return rec.Clone(), nil
}

// SoftDelete marks the record deleted
func (m *MemoryStore) SoftDelete(ctx context.Context, project, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return ConvertError("soft_delete", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Deleted || rec.Project != project || rec.Collection != collection {
		return ErrNotFound
	}
	rec.Deleted = true
	rec.UpdatedAt = time.Now()
	return nil
}

// WriteSnapshot appends a pre-mutation snapshot
func (m *MemoryStore) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return ConvertError("snapshot", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *snap
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Payload = make(map[string]interface{}, len(snap.Payload))
	for k, v := range snap.Payload {
		cp.Payload[k] = v
	}
	m.snapshots[cp.RecordID] = append(m.snapshots[cp.RecordID], &cp)
	return nil
}

// Snapshots returns a record's snapshots in append order
func (m *MemoryStore) Snapshots(ctx context.Context, recordID string) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, ConvertError("snapshots", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[recordID]
	out := make([]*Snapshot, len(snaps))
	copy(out, snaps)
	return out, nil
}

// CreateLink records a relation field value
func (m *MemoryStore) CreateLink(ctx context.Context, link Link) error {
	if err := ctx.Err(); err != nil {
		return ConvertError("create_link", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.SourceID] = append(m.links[link.SourceID], link)
	return nil
}

// RemoveLink removes a relation field value
func (m *MemoryStore) RemoveLink(ctx context.Context, link Link) error {
	if err := ctx.Err(); err != nil {
		return ConvertError("remove_link", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	links := m.links[link.SourceID]
	out := links[:0]
	for _, l := range links {
		if l.Field == link.Field && l.TargetID == link.TargetID {
			continue
		}
		out = append(out, l)
	}
	m.links[link.SourceID] = out
	return nil
}

// Links returns the links originating from a record field
func (m *MemoryStore) Links(ctx context.Context, sourceID, field string) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, ConvertError("links", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Link
	for _, l := range m.links[sourceID] {
		if l.Field == field {
			out = append(out, l)
		}
	}
	return out, nil
}

// fieldValue resolves a query field against a record, treating id and the
// timestamps as metadata
func fieldValue(rec *Record, field string) interface{} {
	switch field {
	case "id":
		return rec.ID
	case "created_at":
		return rec.CreatedAt
	case "updated_at":
		return rec.UpdatedAt
	default:
		return rec.Payload[field]
	}
}

func matchesFilters(rec *Record, filters []query.Filter) (bool, error) {
	for _, f := range filters {
		ok, err := matchFilter(rec, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchFilter(rec *Record, f query.Filter) (bool, error) {
	v := fieldValue(rec, f.Field)

	switch f.Op {
	case query.OpEquals:
		return looseEqual(v, f.Value), nil

	case query.OpNotEquals:
		return !looseEqual(v, f.Value), nil

	case query.OpIn:
		values, ok := f.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("in filter requires a list value")
		}
		for _, candidate := range values {
			if looseEqual(v, candidate) {
				return true, nil
			}
		}
		return false, nil

	case query.OpContains:
		needle, ok := f.Value.(string)
		if !ok {
			return false, fmt.Errorf("contains filter requires a string value")
		}
		switch hay := v.(type) {
		case string:
			return strings.Contains(strings.ToLower(hay), strings.ToLower(needle)), nil
		case []interface{}:
			for _, e := range hay {
				if s, ok := e.(string); ok && strings.EqualFold(s, needle) {
					return true, nil
				}
			}
			return false, nil
		case []string:
			for _, s := range hay {
				if strings.EqualFold(s, needle) {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, nil
		}

	case query.OpRange:
		bounds, ok := f.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("range filter requires a [min, max] pair")
		}
		n, ok := toFloat(v)
		if !ok {
			return false, nil
		}
		min, okMin := toFloat(bounds[0])
		max, okMax := toFloat(bounds[1])
		if !okMin || !okMax {
			return false, fmt.Errorf("range bounds must be numeric")
		}
		return n >= min && n <= max, nil

	case query.OpIsNull:
		want := true
		if b, ok := f.Value.(bool); ok {
			want = b
		}
		return (v == nil) == want, nil

	default:
		return false, fmt.Errorf("unsupported operator: %v", f.Op)
	}
}

func matchesSearch(rec *Record, term string, fields []string) bool {
	needle := strings.ToLower(term)
	for _, name := range fields {
		if s, ok := rec.Payload[name].(string); ok {
			if strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

// looseEqual compares payload values across the numeric representations JSON
// decoding produces
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Time:
		return float64(n.UnixNano()), true
	default:
		return 0, false
	}
}

// sortRecords orders records by the requested field, tie-broken by id
// ascending so pagination is deterministic across repeated calls
func sortRecords(records []*Record, field string, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if field != "" {
			vi := fieldValue(records[i], field)
			vj := fieldValue(records[j], field)
			if c := compareValues(vi, vj); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return records[i].ID < records[j].ID
	})
}

func compareValues(a, b interface{}) int {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb)
	}
	// nil sorts first
	if a == nil && b != nil {
		return -1
	}
	if a != nil && b == nil {
		return 1
	}
	return 0
}
