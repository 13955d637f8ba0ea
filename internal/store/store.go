// Package store defines the storage collaborator consumed by the record
// orchestrator, plus the built-in backends: an in-memory store used by tests
// and demos, and a SQL store for Postgres or SQLite. Records carry their
// payload as an opaque structured blob keyed by field name; the store never
// interprets field semantics beyond what the translated query asks for.
package store

import (
	"context"
	"time"

	"github.com/cabinet-dev/cabinet/internal/query"
)

// Record is one stored entity of a collection
type Record struct {
	ID         string                 `json:"id"`
	Project    string                 `json:"project"`
	Collection string                 `json:"collection"`
	Payload    map[string]interface{} `json:"payload"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Deleted    bool                   `json:"deleted"`
}

// Clone returns a deep-enough copy: the payload map is copied, values are
// shared. Callers that project payloads build fresh maps anyway.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Payload = make(map[string]interface{}, len(r.Payload))
	for k, v := range r.Payload {
		cp.Payload[k] = v
	}
	return &cp
}

// Snapshot is an immutable pre-mutation copy of a record's payload. The store
// appends snapshots and never mutates or deletes them.
type Snapshot struct {
	ID       string                 `json:"id"`
	RecordID string                 `json:"record_id"`
	Payload  map[string]interface{} `json:"payload"`
	Actor    string                 `json:"actor"`
	TakenAt  time.Time              `json:"taken_at"`
}

// Link represents one relation field value: source record, field, target
// record. Many-to-one by default.
type Link struct {
	SourceID string `json:"source_id"`
	Field    string `json:"field"`
	TargetID string `json:"target_id"`
}

// Query is the translated predicate shape produced by the query package
type Query = query.Query

// Store is the storage collaborator interface. Implementations must support
// the predicate shape produced by the query translator and must propagate
// context cancellation and deadlines instead of masking them.
type Store interface {
	// Fetch evaluates the query and returns the matching page together
	// with the total match count before pagination
	Fetch(ctx context.Context, q *Query) ([]*Record, int, error)

	// Get returns a record by id, including soft-deleted ones
	Get(ctx context.Context, project, collection, id string) (*Record, error)

	// Exists reports whether a live record with the id exists in the
	// collection
	Exists(ctx context.Context, project, collection, id string) (bool, error)

	// Insert stores a new record and returns it with timestamps set
	Insert(ctx context.Context, rec *Record) (*Record, error)

	// Update merges the partial payload into the record and returns the
	// updated record
	Update(ctx context.Context, project, collection, id string, payload map[string]interface{}) (*Record, error)

	// SoftDelete marks the record deleted without removing it
	SoftDelete(ctx context.Context, project, collection, id string) error

	// WriteSnapshot appends a pre-mutation snapshot
	WriteSnapshot(ctx context.Context, snap *Snapshot) error

	// Snapshots returns a record's snapshots in append order
	Snapshots(ctx context.Context, recordID string) ([]*Snapshot, error)

	// CreateLink records a relation field value
	CreateLink(ctx context.Context, link Link) error

	// RemoveLink removes a relation field value
	RemoveLink(ctx context.Context, link Link) error

	// Links returns the links originating from a record field
	Links(ctx context.Context, sourceID, field string) ([]Link, error)
}
