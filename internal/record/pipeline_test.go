package record

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet-dev/cabinet/internal/acl"
	"github.com/cabinet-dev/cabinet/internal/query"
	"github.com/cabinet-dev/cabinet/internal/schema"
	"github.com/cabinet-dev/cabinet/internal/store"
)

// scriptedStore wraps a real store to record call order and inject failures
type scriptedStore struct {
	store.Store

	calls       []string
	snapshotErr error
	fetchErr    error
}

func (s *scriptedStore) Fetch(ctx context.Context, q *store.Query) ([]*store.Record, int, error) {
	s.calls = append(s.calls, "fetch")
	if s.fetchErr != nil {
		return nil, 0, s.fetchErr
	}
	return s.Store.Fetch(ctx, q)
}

func (s *scriptedStore) WriteSnapshot(ctx context.Context, snap *store.Snapshot) error {
	s.calls = append(s.calls, "snapshot")
	if s.snapshotErr != nil {
		return s.snapshotErr
	}
	return s.Store.WriteSnapshot(ctx, snap)
}

func (s *scriptedStore) Update(ctx context.Context, project, collection, id string, payload map[string]interface{}) (*store.Record, error) {
	s.calls = append(s.calls, "update")
	return s.Store.Update(ctx, project, collection, id, payload)
}

func (s *scriptedStore) SoftDelete(ctx context.Context, project, collection, id string) error {
	s.calls = append(s.calls, "soft_delete")
	return s.Store.SoftDelete(ctx, project, collection, id)
}

func newScriptedService(t *testing.T, opts ...Option) (*Service, *scriptedStore, *store.MemoryStore) {
	t.Helper()

	mem := store.NewMemoryStore()
	scripted := &scriptedStore{Store: mem}
	return NewService(testRegistry(t), scripted, opts...), scripted, mem
}

func TestSnapshotTakenBeforePersist(t *testing.T) {
	svc, scripted, mem := newScriptedService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX", "year": 1999,
	})
	require.NoError(t, err)

	scripted.calls = nil
	_, err = svc.UpdateRecord(ctx, "garage", "cars", rec.ID, editor, map[string]interface{}{
		"year": 2001,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot", "update"}, scripted.calls,
		"snapshot happens strictly before the mutation is persisted")

	snaps, err := mem.Snapshots(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1999, snaps[0].Payload["year"], "snapshot holds the pre-mutation payload")
	assert.Equal(t, editor.ID, snaps[0].Actor)
}

func TestSnapshotTakenBeforeDelete(t *testing.T) {
	svc, scripted, mem := newScriptedService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{"model": "NSX"})
	require.NoError(t, err)

	scripted.calls = nil
	require.NoError(t, svc.DeleteRecord(ctx, "garage", "cars", rec.ID, editor))
	assert.Equal(t, []string{"snapshot", "soft_delete"}, scripted.calls)

	snaps, err := mem.Snapshots(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestSnapshotFailureNonFatalByDefault(t *testing.T) {
	svc, scripted, _ := newScriptedService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX", "year": 1999,
	})
	require.NoError(t, err)

	scripted.snapshotErr = errors.New("disk full")
	updated, err := svc.UpdateRecord(ctx, "garage", "cars", rec.ID, editor, map[string]interface{}{
		"year": 2001,
	})
	require.NoError(t, err, "the mutation proceeds when the snapshot fails")
	assert.Equal(t, 2001, updated.Payload["year"])
}

func TestSnapshotFailureFatalWhenConfigured(t *testing.T) {
	svc, scripted, mem := newScriptedService(t, WithSnapshotFailureFatal())
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX", "year": 1999,
	})
	require.NoError(t, err)

	scripted.snapshotErr = errors.New("disk full")
	_, err = svc.UpdateRecord(ctx, "garage", "cars", rec.ID, editor, map[string]interface{}{
		"year": 2001,
	})
	require.Error(t, err)

	// The mutation was aborted.
	stored, err := mem.Get(ctx, "garage", "cars", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1999, stored.Payload["year"])
}

func TestSnapshotPolicyOffSkipsSnapshot(t *testing.T) {
	svc, scripted, _ := newScriptedService(t)
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, "garage", "settings", editor, map[string]interface{}{
		"currency": "EUR",
	})
	require.NoError(t, err)

	scripted.calls = nil
	_, err = svc.UpdateRecord(ctx, "garage", "settings", "", editor, map[string]interface{}{
		"currency": "USD",
	})
	require.NoError(t, err)
	assert.NotContains(t, scripted.calls, "snapshot",
		"collection opted out of snapshots")
}

func TestSnapshotDefaultOffHonored(t *testing.T) {
	svc, scripted, _ := newScriptedService(t, WithSnapshotDefault(false))
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{"model": "NSX"})
	require.NoError(t, err)

	scripted.calls = nil
	_, err = svc.UpdateRecord(ctx, "garage", "cars", rec.ID, editor, map[string]interface{}{"year": 2001})
	require.NoError(t, err)
	assert.NotContains(t, scripted.calls, "snapshot")
}

func TestUpstreamTimeoutMapped(t *testing.T) {
	svc, scripted, _ := newScriptedService(t)

	scripted.fetchErr = context.DeadlineExceeded
	_, err := svc.ListRecords(context.Background(), "garage", "cars", anon, query.Request{})
	assert.True(t, IsUpstreamTimeout(err),
		"storage timeouts surface distinctly from generic failures")
	assert.False(t, IsNotFound(err))
}

func TestStorageFailureMapped(t *testing.T) {
	svc, scripted, _ := newScriptedService(t)

	scripted.fetchErr = errors.New("connection reset")
	_, err := svc.ListRecords(context.Background(), "garage", "cars", anon, query.Request{})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestCancellationStopsBeforePersist(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX",
	})
	assert.ErrorIs(t, err, context.Canceled)

	// Nothing was written.
	page, err := svc.ListRecords(context.Background(), "garage", "cars", anon, query.Request{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestRunAction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Role gate.
	_, err := svc.RunAction(ctx, "garage", "appraise", editor, map[string]interface{}{
		"reason": "trade-in",
	})
	assert.True(t, acl.IsAccessDenied(err))

	// Unknown action.
	_, err = svc.RunAction(ctx, "garage", "repaint", dealer, nil)
	assert.True(t, IsNotFound(err))

	// Input validation: unknown and missing fields are explicit errors.
	_, err = svc.RunAction(ctx, "garage", "appraise", dealer, map[string]interface{}{
		"reason": "trade-in",
		"bogus":  1,
	})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.RunAction(ctx, "garage", "appraise", dealer, map[string]interface{}{})
	require.ErrorAs(t, err, &verr)

	// Without a handler the validated input is echoed.
	res, err := svc.RunAction(ctx, "garage", "appraise", dealer, map[string]interface{}{
		"reason": "trade-in",
	})
	require.NoError(t, err)
	assert.Equal(t, "appraise", res.Action)
	assert.Equal(t, map[string]interface{}{"reason": "trade-in"}, res.Output)
}

func TestRunActionHandler(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var gotActor string
	require.NoError(t, svc.RegisterAction("garage", "appraise",
		func(ctx context.Context, p acl.Principal, input map[string]interface{}) (interface{}, error) {
			gotActor = p.ID
			return map[string]interface{}{"estimate": 42000}, nil
		}))

	res, err := svc.RunAction(ctx, "garage", "appraise", dealer, map[string]interface{}{
		"reason": "trade-in",
	})
	require.NoError(t, err)
	assert.Equal(t, dealer.ID, gotActor)
	assert.Equal(t, map[string]interface{}{"estimate": 42000}, res.Output)

	// Handlers can only bind to declared actions.
	err = svc.RegisterAction("garage", "repaint", nil)
	assert.True(t, IsNotFound(err))
}

func TestListCollections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	specs, err := svc.ListCollections(ctx, "garage", anon)
	require.NoError(t, err)

	names := make([]string, 0, len(specs))
	for _, c := range specs {
		names = append(names, c.Name)
	}
	// The staff-only vault is omitted for anonymous callers.
	assert.Equal(t, []string{"cars", "owners", "settings"}, names)

	for _, c := range specs {
		if c.Name == "cars" {
			assert.False(t, c.HasField("price"), "hidden fields are omitted from the spec listing")
		}
	}

	_, err = svc.ListCollections(ctx, "shipyard", anon)
	assert.True(t, IsNotFound(err))
}

// fakeCache is an in-process RecordCache for pipeline tests
type fakeCache struct {
	entries map[string]*store.Record
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*store.Record)}
}

func (c *fakeCache) key(project, collection, id string) string {
	return project + "/" + collection + "/" + id
}

func (c *fakeCache) Get(ctx context.Context, project, collection, id string) (*store.Record, bool) {
	rec, ok := c.entries[c.key(project, collection, id)]
	if ok {
		c.hits++
	}
	return rec, ok
}

func (c *fakeCache) Set(ctx context.Context, rec *store.Record) {
	c.entries[c.key(rec.Project, rec.Collection, rec.ID)] = rec
}

func (c *fakeCache) Invalidate(ctx context.Context, project, collection, id string) {
	delete(c.entries, c.key(project, collection, id))
}

func TestCacheReadThroughAndInvalidation(t *testing.T) {
	cache := newFakeCache()
	mem := store.NewMemoryStore()
	svc := NewService(testRegistry(t), mem, WithCache(cache))
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX", "year": 1999,
	})
	require.NoError(t, err)

	// First get fills the cache, second one hits it.
	_, err = svc.GetRecord(ctx, "garage", "cars", rec.ID, editor)
	require.NoError(t, err)
	assert.Zero(t, cache.hits)

	_, err = svc.GetRecord(ctx, "garage", "cars", rec.ID, editor)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	// A mutation invalidates the entry; the next read sees fresh state.
	_, err = svc.UpdateRecord(ctx, "garage", "cars", rec.ID, editor, map[string]interface{}{
		"year": 2001,
	})
	require.NoError(t, err)

	got, err := svc.GetRecord(ctx, "garage", "cars", rec.ID, editor)
	require.NoError(t, err)
	assert.Equal(t, 2001, got.Payload["year"])
}

func TestRecordContext(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	owner, err := svc.CreateRecord(ctx, "garage", "owners", editor, map[string]interface{}{
		"full_name": "Ayrton",
	})
	require.NoError(t, err)
	car, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX", "owner": owner.ID,
	})
	require.NoError(t, err)

	stored, err := mem.Get(ctx, "garage", "cars", car.ID)
	require.NoError(t, err)

	out, err := svc.RecordContext(ctx, "garage", "cars", stored, editor)
	require.NoError(t, err)
	assert.Equal(t, car.ID, out["id"])
	assert.Equal(t, "cars", out["collection"])

	relations, ok := out["relations"].(map[string]interface{})
	require.True(t, ok)
	summary, ok := relations["owner"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, owner.ID, summary["id"])
	assert.Equal(t, "owners", summary["collection"])

	payload, ok := summary["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Ayrton", payload["full_name"])
}

func TestRecordContextSkipsMissingTarget(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	owner, err := svc.CreateRecord(ctx, "garage", "owners", editor, map[string]interface{}{
		"full_name": "Ayrton",
	})
	require.NoError(t, err)
	car, err := svc.CreateRecord(ctx, "garage", "cars", editor, map[string]interface{}{
		"model": "NSX", "owner": owner.ID,
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRecord(ctx, "garage", "owners", owner.ID, editor))

	stored, err := mem.Get(ctx, "garage", "cars", car.ID)
	require.NoError(t, err)

	out, err := svc.RecordContext(ctx, "garage", "cars", stored, editor)
	require.NoError(t, err)
	_, hasRelations := out["relations"]
	assert.False(t, hasRelations, "deleted targets are omitted")
}
