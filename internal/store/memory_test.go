package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet-dev/cabinet/internal/query"
)

func seedCars(t *testing.T, m *MemoryStore) []*Record {
	t.Helper()

	ctx := context.Background()
	payloads := []map[string]interface{}{
		{"model": "NSX", "year": 1999, "tags": []interface{}{"coupe", "rare"}},
		{"model": "Civic", "year": 2020, "tags": []interface{}{"sedan"}},
		{"model": "Accord", "year": 2020, "tags": []interface{}{"sedan"}},
		{"model": "Prelude", "year": 1996, "tags": nil},
	}

	out := make([]*Record, 0, len(payloads))
	for i, p := range payloads {
		rec, err := m.Insert(ctx, &Record{
			ID:         fmt.Sprintf("car-%d", i+1),
			Project:    "garage",
			Collection: "cars",
			Payload:    p,
		})
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func fetchIDs(t *testing.T, m *MemoryStore, q *Query) []string {
	t.Helper()

	recs, _, err := m.Fetch(context.Background(), q)
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestMemoryInsertAndGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	rec, err := m.Insert(ctx, &Record{Project: "garage", Collection: "cars",
		Payload: map[string]interface{}{"model": "NSX"}})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID, "id is generated when absent")
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := m.Get(ctx, "garage", "cars", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "NSX", got.Payload["model"])

	// Wrong collection scope does not find the record.
	_, err = m.Get(ctx, "garage", "owners", rec.ID)
	assert.True(t, IsNotFound(err))
}

func TestMemoryInsertDuplicateID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.Insert(ctx, &Record{ID: "car-1", Project: "garage", Collection: "cars"})
	require.NoError(t, err)
	_, err = m.Insert(ctx, &Record{ID: "car-1", Project: "garage", Collection: "cars"})
	assert.True(t, IsConflict(err))
}

func TestMemoryFetchFilters(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)

	base := Query{Project: "garage", Collection: "cars"}

	tests := []struct {
		name   string
		filter query.Filter
		want   []string
	}{
		{"equals", query.Filter{Field: "year", Op: query.OpEquals, Value: 2020}, []string{"car-2", "car-3"}},
		{"equals numeric coercion", query.Filter{Field: "year", Op: query.OpEquals, Value: float64(2020)}, []string{"car-2", "car-3"}},
		{"notEquals", query.Filter{Field: "year", Op: query.OpNotEquals, Value: 2020}, []string{"car-1", "car-4"}},
		{"in", query.Filter{Field: "model", Op: query.OpIn, Value: []interface{}{"NSX", "Prelude"}}, []string{"car-1", "car-4"}},
		{"contains string", query.Filter{Field: "model", Op: query.OpContains, Value: "cc"}, []string{"car-3"}},
		{"contains multi value", query.Filter{Field: "tags", Op: query.OpContains, Value: "sedan"}, []string{"car-2", "car-3"}},
		{"range", query.Filter{Field: "year", Op: query.OpRange, Value: []interface{}{1995, 2000}}, []string{"car-1", "car-4"}},
		{"isNull true", query.Filter{Field: "tags", Op: query.OpIsNull, Value: true}, []string{"car-4"}},
		{"isNull false", query.Filter{Field: "year", Op: query.OpIsNull, Value: false}, []string{"car-1", "car-2", "car-3", "car-4"}},
		{"meta id", query.Filter{Field: "id", Op: query.OpEquals, Value: "car-2"}, []string{"car-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base
			q.Filters = []query.Filter{tt.filter}
			assert.Equal(t, tt.want, fetchIDs(t, m, &q))
		})
	}
}

func TestMemoryFetchFiltersAreConjunctive(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)

	q := &Query{Project: "garage", Collection: "cars", Filters: []query.Filter{
		{Field: "year", Op: query.OpEquals, Value: 2020},
		{Field: "model", Op: query.OpContains, Value: "civ"},
	}}
	assert.Equal(t, []string{"car-2"}, fetchIDs(t, m, q))
}

func TestMemoryFetchSearch(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)

	q := &Query{Project: "garage", Collection: "cars",
		Search: "PRE", SearchFields: []string{"model"}}
	assert.Equal(t, []string{"car-4"}, fetchIDs(t, m, q))

	// No search fields means nothing matches.
	q = &Query{Project: "garage", Collection: "cars", Search: "pre"}
	assert.Empty(t, fetchIDs(t, m, q))
}

func TestMemoryFetchSortDeterministic(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)

	q := &Query{Project: "garage", Collection: "cars", Sort: "year"}
	// car-2 and car-3 share year 2020; id breaks the tie.
	assert.Equal(t, []string{"car-4", "car-1", "car-2", "car-3"}, fetchIDs(t, m, q))

	q.SortDesc = true
	assert.Equal(t, []string{"car-2", "car-3", "car-1", "car-4"}, fetchIDs(t, m, q))
}

func TestMemoryFetchPagination(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)

	q := &Query{Project: "garage", Collection: "cars", Sort: "year", Limit: 2}
	recs, total, err := m.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 4, total, "total counts all matches before pagination")
	require.Len(t, recs, 2)
	assert.Equal(t, "car-4", recs[0].ID)

	q.Offset = 2
	assert.Equal(t, []string{"car-2", "car-3"}, fetchIDs(t, m, q))

	q.Offset = 10
	recs, total, err = m.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, recs)
}

func TestMemoryUpdateMergesPayload(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)
	ctx := context.Background()

	rec, err := m.Update(ctx, "garage", "cars", "car-1", map[string]interface{}{"year": 2001})
	require.NoError(t, err)
	assert.Equal(t, 2001, rec.Payload["year"])
	assert.Equal(t, "NSX", rec.Payload["model"], "untouched fields survive a partial update")

	_, err = m.Update(ctx, "garage", "cars", "missing", map[string]interface{}{})
	assert.True(t, IsNotFound(err))
}

func TestMemorySoftDelete(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)
	ctx := context.Background()

	require.NoError(t, m.SoftDelete(ctx, "garage", "cars", "car-1"))

	// Fetch excludes deleted records unless asked.
	q := &Query{Project: "garage", Collection: "cars"}
	assert.Equal(t, []string{"car-2", "car-3", "car-4"}, fetchIDs(t, m, q))
	q.IncludeDeleted = true
	assert.Len(t, fetchIDs(t, m, q), 4)

	// Get still reaches the tombstone; Exists does not.
	rec, err := m.Get(ctx, "garage", "cars", "car-1")
	require.NoError(t, err)
	assert.True(t, rec.Deleted)

	live, err := m.Exists(ctx, "garage", "cars", "car-1")
	require.NoError(t, err)
	assert.False(t, live)

	// Double delete and update of a tombstone both miss.
	assert.True(t, IsNotFound(m.SoftDelete(ctx, "garage", "cars", "car-1")))
	_, err = m.Update(ctx, "garage", "cars", "car-1", map[string]interface{}{})
	assert.True(t, IsNotFound(err))
}

func TestMemorySnapshots(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	payload := map[string]interface{}{"model": "NSX"}
	require.NoError(t, m.WriteSnapshot(ctx, &Snapshot{
		RecordID: "car-1", Payload: payload, Actor: "u1", TakenAt: time.Now(),
	}))
	require.NoError(t, m.WriteSnapshot(ctx, &Snapshot{
		RecordID: "car-1", Payload: map[string]interface{}{"model": "NSX-R"}, Actor: "u2",
	}))

	// Snapshots are copies; later payload mutation does not reach them.
	payload["model"] = "mutated"

	snaps, err := m.Snapshots(ctx, "car-1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "NSX", snaps[0].Payload["model"])
	assert.Equal(t, "u1", snaps[0].Actor)
	assert.NotEmpty(t, snaps[0].ID)

	snaps, err = m.Snapshots(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestMemoryLinks(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.CreateLink(ctx, Link{SourceID: "car-1", Field: "owner", TargetID: "p-1"}))
	require.NoError(t, m.CreateLink(ctx, Link{SourceID: "car-1", Field: "owner", TargetID: "p-2"}))
	require.NoError(t, m.CreateLink(ctx, Link{SourceID: "car-1", Field: "dealer", TargetID: "d-1"}))

	links, err := m.Links(ctx, "car-1", "owner")
	require.NoError(t, err)
	assert.Len(t, links, 2)

	require.NoError(t, m.RemoveLink(ctx, Link{SourceID: "car-1", Field: "owner", TargetID: "p-1"}))
	links, err = m.Links(ctx, "car-1", "owner")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "p-2", links[0].TargetID)

	links, err = m.Links(ctx, "car-1", "dealer")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestMemoryHonorsContextCancellation(t *testing.T) {
	m := NewMemoryStore()
	seedCars(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := m.Fetch(ctx, &Query{Project: "garage", Collection: "cars"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.Insert(ctx, &Record{Project: "garage", Collection: "cars"})
	assert.ErrorIs(t, err, context.Canceled)
}
