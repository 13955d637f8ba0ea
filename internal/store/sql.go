package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cabinet-dev/cabinet/internal/query"
)

// Dialect abstracts the differences between the supported SQL backends:
// placeholder style and JSON payload access.
type Dialect interface {
	// Placeholder returns the bind placeholder for the n-th parameter
	// (1-based)
	Placeholder(n int) string

	// JSONText returns an expression extracting a payload field as text
	JSONText(field string) string

	// JSONNumber returns an expression extracting a payload field as a
	// number, usable in comparisons
	JSONNumber(field string) string
}

// PostgresDialect targets a JSONB payload column
type PostgresDialect struct{}

// Placeholder returns $n
func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// JSONText returns payload->>'field'
func (PostgresDialect) JSONText(field string) string {
	return fmt.Sprintf("payload->>'%s'", field)
}

// JSONNumber casts the extracted text to numeric
func (PostgresDialect) JSONNumber(field string) string {
	return fmt.Sprintf("(payload->>'%s')::numeric", field)
}

// SQLiteDialect targets a JSON text payload column
type SQLiteDialect struct{}

// Placeholder returns ?
func (SQLiteDialect) Placeholder(int) string { return "?" }

// JSONText returns json_extract(payload, '$.field')
func (SQLiteDialect) JSONText(field string) string {
	return fmt.Sprintf("json_extract(payload, '$.%s')", field)
}

// JSONNumber is the same extraction; SQLite compares JSON numbers natively
func (SQLiteDialect) JSONNumber(field string) string {
	return fmt.Sprintf("json_extract(payload, '$.%s')", field)
}

// SQLStore is a Store backed by a SQL database through database/sql. Use
// PostgresDialect with lib/pq and SQLiteDialect with mattn/go-sqlite3.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// EnsureSchema creates the backing tables when they do not exist yet
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			collection TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS record_snapshots (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			actor TEXT NOT NULL,
			taken_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS record_links (
			source_id TEXT NOT NULL,
			field TEXT NOT NULL,
			target_id TEXT NOT NULL,
			PRIMARY KEY (source_id, field, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_scope ON records (project, collection, deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_record ON record_snapshots (record_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return ConvertError("ensure_schema", err)
		}
	}
	return nil
}

// Fetch evaluates the translated query against the records table
func (s *SQLStore) Fetch(ctx context.Context, q *Query) ([]*Record, int, error) {
	where, args, err := s.buildWhere(q)
	if err != nil {
		return nil, 0, err
	}

	countQuery := "SELECT COUNT(*) FROM records WHERE " + where
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, ConvertError("fetch", err)
	}

	orderBy := s.buildOrderBy(q)
	counter := len(args) + 1
	listQuery := fmt.Sprintf(
		"SELECT id, project, collection, payload, created_at, updated_at, deleted FROM records WHERE %s ORDER BY %s LIMIT %s OFFSET %s",
		where, orderBy, s.dialect.Placeholder(counter), s.dialect.Placeholder(counter+1),
	)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, ConvertError("fetch", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, ConvertError("fetch", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, ConvertError("fetch", err)
	}
	return records, total, nil
}

// buildWhere translates the query predicate into SQL with bind parameters
func (s *SQLStore) buildWhere(q *Query) (string, []interface{}, error) {
	var parts []string
	var args []interface{}
	counter := 1

	bind := func(v interface{}) string {
		args = append(args, v)
		ph := s.dialect.Placeholder(counter)
		counter++
		return ph
	}

	parts = append(parts, fmt.Sprintf("project = %s", bind(q.Project)))
	parts = append(parts, fmt.Sprintf("collection = %s", bind(q.Collection)))
	if !q.IncludeDeleted {
		parts = append(parts, "deleted = FALSE")
	}

	for _, f := range q.Filters {
		clause, err := s.filterClause(f, bind)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, clause)
	}

	if q.Search != "" && len(q.SearchFields) > 0 {
		var searchParts []string
		needle := "%" + strings.ToLower(q.Search) + "%"
		for _, field := range q.SearchFields {
			searchParts = append(searchParts,
				fmt.Sprintf("LOWER(%s) LIKE %s", s.dialect.JSONText(field), bind(needle)))
		}
		parts = append(parts, "("+strings.Join(searchParts, " OR ")+")")
	}

	return strings.Join(parts, " AND "), args, nil
}

func (s *SQLStore) filterClause(f query.Filter, bind func(interface{}) string) (string, error) {
	expr := s.fieldExpr(f.Field, false)

	switch f.Op {
	case query.OpEquals:
		return fmt.Sprintf("%s = %s", expr, bind(filterArg(f.Value))), nil

	case query.OpNotEquals:
		return fmt.Sprintf("%s != %s", expr, bind(filterArg(f.Value))), nil

	case query.OpIn:
		values, ok := f.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("in filter requires a list value")
		}
		if len(values) == 0 {
			// IN over an empty set matches nothing
			return "FALSE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = bind(filterArg(v))
		}
		return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", ")), nil

	case query.OpContains:
		needle, ok := f.Value.(string)
		if !ok {
			return "", fmt.Errorf("contains filter requires a string value")
		}
		return fmt.Sprintf("LOWER(%s) LIKE %s", expr, bind("%"+strings.ToLower(needle)+"%")), nil

	case query.OpRange:
		bounds, ok := f.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return "", fmt.Errorf("range filter requires a [min, max] pair")
		}
		numExpr := s.fieldExpr(f.Field, true)
		min := bind(filterArg(bounds[0]))
		max := bind(filterArg(bounds[1]))
		return fmt.Sprintf("%s BETWEEN %s AND %s", numExpr, min, max), nil

	case query.OpIsNull:
		want := true
		if b, ok := f.Value.(bool); ok {
			want = b
		}
		if want {
			return fmt.Sprintf("%s IS NULL", expr), nil
		}
		return fmt.Sprintf("%s IS NOT NULL", expr), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", f.Op)
	}
}

// fieldExpr resolves a query field to a column or payload expression
func (s *SQLStore) fieldExpr(field string, numeric bool) string {
	switch field {
	case "id", "created_at", "updated_at":
		return field
	}
	if numeric {
		return s.dialect.JSONNumber(field)
	}
	return s.dialect.JSONText(field)
}

func (s *SQLStore) buildOrderBy(q *Query) string {
	if q.Sort == "" {
		return "id ASC"
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	// Tie-break by id so pagination stays deterministic
	return fmt.Sprintf("%s %s, id ASC", s.fieldExpr(q.Sort, false), dir)
}

// filterArg normalizes filter values for binding
func filterArg(v interface{}) interface{} {
	switch n := v.(type) {
	case time.Time:
		return n.UTC()
	default:
		return v
	}
}

// Get returns a record by id, including soft-deleted ones
func (s *SQLStore) Get(ctx context.Context, project, collection, id string) (*Record, error) {
	q := fmt.Sprintf(
		"SELECT id, project, collection, payload, created_at, updated_at, deleted FROM records WHERE id = %s AND project = %s AND collection = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	row := s.db.QueryRowContext(ctx, q, id, project, collection)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, ConvertError("get", err)
	}
	return rec, nil
}

// Exists reports whether a live record with the id exists
func (s *SQLStore) Exists(ctx context.Context, project, collection, id string) (bool, error) {
	q := fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM records WHERE id = %s AND project = %s AND collection = %s AND deleted = FALSE)",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, id, project, collection).Scan(&exists); err != nil {
		return false, ConvertError("exists", err)
	}
	return exists, nil
}

// Insert stores a new record
func (s *SQLStore) Insert(ctx context.Context, rec *Record) (*Record, error) {
	cp := rec.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	payload, err := json.Marshal(cp.Payload)
	if err != nil {
		return nil, &StorageError{Op: "insert", Err: err}
	}

	q := fmt.Sprintf(
		"INSERT INTO records (id, project, collection, payload, created_at, updated_at, deleted) VALUES (%s, %s, %s, %s, %s, %s, FALSE)",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
	)
	if _, err := s.db.ExecContext(ctx, q, cp.ID, cp.Project, cp.Collection, string(payload), cp.CreatedAt, cp.UpdatedAt); err != nil {
		return nil, ConvertError("insert", err)
	}
	return cp, nil
}

// Update merges the partial payload into the record. The merge happens in Go
// rather than with backend-specific JSON operators so both dialects behave
// identically.
func (s *SQLStore) Update(ctx context.Context, project, collection, id string, payload map[string]interface{}) (*Record, error) {
	current, err := s.Get(ctx, project, collection, id)
	if err != nil {
		return nil, err
	}
	if current.Deleted {
		return nil, ErrNotFound
	}

	for k, v := range payload {
		current.Payload[k] = v
	}
	current.UpdatedAt = time.Now().UTC()

	merged, err := json.Marshal(current.Payload)
	if err != nil {
		return nil, &StorageError{Op: "update", Err: err}
	}

	q := fmt.Sprintf(
		"UPDATE records SET payload = %s, updated_at = %s WHERE id = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	res, err := s.db.ExecContext(ctx, q, string(merged), current.UpdatedAt, id)
	if err != nil {
		return nil, ConvertError("update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return current, nil
}

// SoftDelete marks the record deleted
func (s *SQLStore) SoftDelete(ctx context.Context, project, collection, id string) error {
	q := fmt.Sprintf(
		"UPDATE records SET deleted = TRUE, updated_at = %s WHERE id = %s AND project = %s AND collection = %s AND deleted = FALSE",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4),
	)
	res, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id, project, collection)
	if err != nil {
		return ConvertError("soft_delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// WriteSnapshot appends a pre-mutation snapshot
func (s *SQLStore) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	id := snap.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return &StorageError{Op: "snapshot", Err: err}
	}
	q := fmt.Sprintf(
		"INSERT INTO record_snapshots (id, record_id, payload, actor, taken_at) VALUES (%s, %s, %s, %s, %s)",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5),
	)
	if _, err := s.db.ExecContext(ctx, q, id, snap.RecordID, string(payload), snap.Actor, snap.TakenAt.UTC()); err != nil {
		return ConvertError("snapshot", err)
	}
	return nil
}

// Snapshots returns a record's snapshots in append order
func (s *SQLStore) Snapshots(ctx context.Context, recordID string) ([]*Snapshot, error) {
	q := fmt.Sprintf(
		"SELECT id, record_id, payload, actor, taken_at FROM record_snapshots WHERE record_id = %s ORDER BY taken_at ASC, id ASC",
		s.dialect.Placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, q, recordID)
	if err != nil {
		return nil, ConvertError("snapshots", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var snap Snapshot
		var payload string
		if err := rows.Scan(&snap.ID, &snap.RecordID, &payload, &snap.Actor, &snap.TakenAt); err != nil {
			return nil, ConvertError("snapshots", err)
		}
		if err := json.Unmarshal([]byte(payload), &snap.Payload); err != nil {
			return nil, &StorageError{Op: "snapshots", Err: err}
		}
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertError("snapshots", err)
	}
	return out, nil
}

// CreateLink records a relation field value
func (s *SQLStore) CreateLink(ctx context.Context, link Link) error {
	q := fmt.Sprintf(
		"INSERT INTO record_links (source_id, field, target_id) VALUES (%s, %s, %s)",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	if _, err := s.db.ExecContext(ctx, q, link.SourceID, link.Field, link.TargetID); err != nil {
		return ConvertError("create_link", err)
	}
	return nil
}

// RemoveLink removes a relation field value
func (s *SQLStore) RemoveLink(ctx context.Context, link Link) error {
	q := fmt.Sprintf(
		"DELETE FROM record_links WHERE source_id = %s AND field = %s AND target_id = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
	)
	if _, err := s.db.ExecContext(ctx, q, link.SourceID, link.Field, link.TargetID); err != nil {
		return ConvertError("remove_link", err)
	}
	return nil
}

// Links returns the links originating from a record field
func (s *SQLStore) Links(ctx context.Context, sourceID, field string) ([]Link, error) {
	q := fmt.Sprintf(
		"SELECT source_id, field, target_id FROM record_links WHERE source_id = %s AND field = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2),
	)
	rows, err := s.db.QueryContext(ctx, q, sourceID, field)
	if err != nil {
		return nil, ConvertError("links", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.SourceID, &l.Field, &l.TargetID); err != nil {
			return nil, ConvertError("links", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertError("links", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var payload string
	if err := row.Scan(&rec.ID, &rec.Project, &rec.Collection, &payload, &rec.CreatedAt, &rec.UpdatedAt, &rec.Deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, err
	}
	return &rec, nil
}
