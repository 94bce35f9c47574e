package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis.
// Used for multi-node deployments and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, databaseID string, key string) ([]byte, error) {
	if databaseID == "" {
		return nil, fmt.Errorf("databaseID is required")
	}

	fullKey := c.makeKey(databaseID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, databaseID string, key string, value []byte, ttl time.Duration) error {
	if databaseID == "" {
		return fmt.Errorf("databaseID is required")
	}

	fullKey := c.makeKey(databaseID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, databaseID string, key string) error {
	if databaseID == "" {
		return fmt.Errorf("databaseID is required")
	}

	fullKey := c.makeKey(databaseID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetReport retrieves a cached quality run report.
func (c *RedisCache) GetReport(ctx context.Context, databaseID string, runID string) (*domain.QualityRunReport, error) {
	data, err := c.Get(ctx, databaseID, "run:"+runID)
	if err != nil || data == nil {
		return nil, err
	}

	var report domain.QualityRunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// SetReport caches a quality run report.
func (c *RedisCache) SetReport(ctx context.Context, databaseID string, runID string, report *domain.QualityRunReport, ttl time.Duration) error {
	bytes, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.Set(ctx, databaseID, "run:"+runID, bytes, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(databaseID, key string) string {
	return "kestrel:" + databaseID + ":" + key
}
