// Package cache provides the redis-backed balance cache. The ledger treats
// it as purely advisory: every write invalidates, reads fall through to the
// projection row on a miss, and redis being down only costs latency.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RedisBalanceCache implements ledger.BalanceCache on top of redis.
type RedisBalanceCache struct {
	client redis.Cmdable
	logger *zap.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisBalanceCache creates a balance cache with the given key prefix
// and entry TTL.
func NewRedisBalanceCache(client redis.Cmdable, logger *zap.Logger, prefix string, ttl time.Duration) *RedisBalanceCache {
	if prefix == "" {
		prefix = "walletd"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisBalanceCache{client: client, logger: logger, prefix: prefix, ttl: ttl}
}

// Get returns the cached balance and whether it was present.
func (c *RedisBalanceCache) Get(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, bool) {
	val, err := c.client.Get(ctx, c.key(userID, currency)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("balance cache read failed", zap.Error(err))
		}
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		c.logger.Warn("balance cache held unparseable value",
			zap.String("value", val), zap.Error(err))
		return decimal.Zero, false
	}
	return balance, true
}

// Set stores a balance with the configured TTL.
func (c *RedisBalanceCache) Set(ctx context.Context, userID uuid.UUID, currency string, balance decimal.Decimal) {
	if err := c.client.Set(ctx, c.key(userID, currency), balance.StringFixed(2), c.ttl).Err(); err != nil {
		c.logger.Warn("balance cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached balance after a ledger write.
func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID uuid.UUID, currency string) {
	if err := c.client.Del(ctx, c.key(userID, currency)).Err(); err != nil {
		c.logger.Warn("balance cache invalidation failed", zap.Error(err))
	}
}

func (c *RedisBalanceCache) key(userID uuid.UUID, currency string) string {
	return fmt.Sprintf("%s:balance:%s:%s", c.prefix, userID, currency)
}
