package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// OccupancyKey is shared with the worker, which refreshes it on gate events.
const OccupancyKey = "campuspro:occupancy"

// RedisOccupancy caches the in-campus count in Redis.
type RedisOccupancy struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisOccupancy creates the cache with the given entry lifetime.
func NewRedisOccupancy(client *redis.Client, ttl time.Duration) *RedisOccupancy {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisOccupancy{client: client, ttl: ttl}
}

// GetOccupancy reads the cached count. A miss or parse failure reads as absent.
func (c *RedisOccupancy) GetOccupancy(ctx context.Context) (int, bool) {
	val, err := c.client.Get(ctx, OccupancyKey).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetOccupancy stores the count with the configured TTL.
func (c *RedisOccupancy) SetOccupancy(ctx context.Context, n int) error {
	return c.client.Set(ctx, OccupancyKey, strconv.Itoa(n), c.ttl).Err()
}
