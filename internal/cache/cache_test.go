package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet-dev/cabinet/internal/store"
)

func newTestCache(t *testing.T) (*RecordCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, 0, nil), mr
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "garage", "cars", "car-1")
	assert.False(t, ok)

	rec := &store.Record{
		ID:         "car-1",
		Project:    "garage",
		Collection: "cars",
		Payload:    map[string]interface{}{"model": "NSX", "year": float64(1999)},
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		UpdatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	c.Set(ctx, rec)

	got, ok := c.Get(ctx, "garage", "cars", "car-1")
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "NSX", got.Payload["model"])
	assert.Equal(t, float64(1999), got.Payload["year"])

	// Entries are scoped by project and collection.
	_, ok = c.Get(ctx, "garage", "owners", "car-1")
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, &store.Record{ID: "car-1", Project: "garage", Collection: "cars",
		Payload: map[string]interface{}{}})
	c.Invalidate(ctx, "garage", "cars", "car-1")

	_, ok := c.Get(ctx, "garage", "cars", "car-1")
	assert.False(t, ok)
}

func TestCacheEntryExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := New(client, time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, &store.Record{ID: "car-1", Project: "garage", Collection: "cars",
		Payload: map[string]interface{}{}})

	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "garage", "cars", "car-1")
	assert.False(t, ok)
}

func TestCacheCorruptEntryDropped(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("record:garage:cars:car-1", "{not json"))

	_, ok := c.Get(ctx, "garage", "cars", "car-1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("record:garage:cars:car-1"), "corrupt entries are deleted")
}

func TestCacheDegradesWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.Close()

	// Failures degrade to a miss; Set and Invalidate do not panic.
	_, ok := c.Get(ctx, "garage", "cars", "car-1")
	assert.False(t, ok)
	c.Set(ctx, &store.Record{ID: "car-1", Project: "garage", Collection: "cars",
		Payload: map[string]interface{}{}})
	c.Invalidate(ctx, "garage", "cars", "car-1")
}
