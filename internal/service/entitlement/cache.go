// internal/service/entitlement/cache.go
package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tuma-service/internal/domain/plan"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSnapshotCache stores plan snapshots in Redis with a TTL. Cache
// misses and Redis failures both fall through to the database; the cache is
// an optimization, never a source of truth.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSnapshotCache {
	return &RedisSnapshotCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(tenantID int64) string {
	return fmt.Sprintf("entitlement:plan:%d", tenantID)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, tenantID int64) (*plan.Plan, bool) {
	data, err := c.client.Get(ctx, cacheKey(tenantID)).Bytes()
	if err != nil {
		return nil, false
	}

	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("failed to decode cached plan snapshot", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return nil, false
	}

	return &p, true
}

func (c *RedisSnapshotCache) Set(ctx context.Context, tenantID int64, p *plan.Plan) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("failed to encode plan snapshot", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, cacheKey(tenantID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache plan snapshot", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, tenantID int64) {
	if err := c.client.Del(ctx, cacheKey(tenantID)).Err(); err != nil {
		c.logger.Warn("failed to invalidate plan snapshot", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}
