package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// defaultOperationTimeout is the timeout for individual Redis operations
	defaultOperationTimeout = 5 * time.Second

	AnalyticsTTL    = 5 * time.Minute
	AuditSummaryTTL = 1 * time.Minute
	BackupStatsTTL  = 2 * time.Minute
)

var ErrCacheMiss = errors.New("cache miss")

type Cache struct {
	client  *redis.Client
	enabled bool
}

func NewCache(addr string, enable bool) (*Cache, error) {
	if !enable {
		return &Cache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an already configured client.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, enabled: client != nil}
}

// Disabled returns a cache on which every read misses and every write is a no-op.
func Disabled() *Cache {
	return &Cache{enabled: false}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// operationContext creates a context with timeout for Redis operations
func (c *Cache) operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultOperationTimeout)
}

func (c *Cache) Set(key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, jsonData, expiration).Err()
}

func (c *Cache) Get(key string, dest interface{}) error {
	if !c.Enabled() {
		return ErrCacheMiss
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Cache) Delete(key string) error {
	if !c.Enabled() {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	return c.client.Del(ctx, key).Err()
}

func (c *Cache) DeletePattern(pattern string) error {
	if !c.Enabled() {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *Cache) Exists(key string) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	val, err := c.client.Exists(ctx, key).Result()
	return val > 0, err
}

func (c *Cache) FlushAll() error {
	if !c.Enabled() {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	return c.client.FlushDB(ctx).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func analyticsKey(days int) string {
	return fmt.Sprintf("analytics:%d", days)
}

func (c *Cache) CacheAnalytics(days int, report interface{}) error {
	return c.Set(analyticsKey(days), report, AnalyticsTTL)
}

func (c *Cache) GetCachedAnalytics(days int, dest interface{}) error {
	return c.Get(analyticsKey(days), dest)
}

func (c *Cache) InvalidateAnalytics() error {
	return c.DeletePattern("analytics:*")
}

func auditSummaryKey(days int) string {
	return fmt.Sprintf("audit:summary:%d", days)
}

func (c *Cache) CacheAuditSummary(days int, summary interface{}) error {
	return c.Set(auditSummaryKey(days), summary, AuditSummaryTTL)
}

func (c *Cache) GetCachedAuditSummary(days int, dest interface{}) error {
	return c.Get(auditSummaryKey(days), dest)
}

func (c *Cache) InvalidateAuditSummaries() error {
	return c.DeletePattern("audit:summary:*")
}

const backupStatsKey = "backup:statistics"

func (c *Cache) CacheBackupStatistics(stats interface{}) error {
	return c.Set(backupStatsKey, stats, BackupStatsTTL)
}

func (c *Cache) GetCachedBackupStatistics(dest interface{}) error {
	return c.Get(backupStatsKey, dest)
}

func (c *Cache) InvalidateBackupStatistics() error {
	return c.Delete(backupStatsKey)
}
