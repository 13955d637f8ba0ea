// Package cache provides an optional Redis-backed read-through cache for
// GetRecord. Entries are invalidated on every mutation, so the cache only
// ever shortens the read path; correctness never depends on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cabinet-dev/cabinet/internal/store"
)

// DefaultTTL bounds staleness if an invalidation is ever lost
const DefaultTTL = 5 * time.Minute

// RecordCache caches records by project, collection, and id
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a cache over the given Redis client. A zero ttl means
// DefaultTTL; a nil logger disables diagnostics.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RecordCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordCache{client: client, ttl: ttl, logger: logger}
}

func key(project, collection, id string) string {
	return fmt.Sprintf("record:%s:%s:%s", project, collection, id)
}

// Get returns the cached record, if any. Cache failures degrade to a miss.
func (c *RecordCache) Get(ctx context.Context, project, collection, id string) (*store.Record, bool) {
	data, err := c.client.Get(ctx, key(project, collection, id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.Error(err))
		c.client.Del(ctx, key(project, collection, id))
		return nil, false
	}
	return &rec, true
}

// Set stores a record. Failures are logged and ignored.
func (c *RecordCache) Set(ctx context.Context, rec *store.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("cache set skipped", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key(rec.Project, rec.Collection, rec.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}

// Invalidate drops a record's entry after a mutation
func (c *RecordCache) Invalidate(ctx context.Context, project, collection, id string) {
	if err := c.client.Del(ctx, key(project, collection, id)).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", zap.Error(err))
	}
}
