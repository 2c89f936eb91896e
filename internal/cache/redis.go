package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redis/v8"

	"github.com/pawprint/petfeed/pkg/config"
	"github.com/pawprint/petfeed/pkg/logging"
)

const keyPrefix = "petfeed:"

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = fmt.Errorf("cache is disabled")

	// ErrMiss is returned when a key is not cached
	ErrMiss = errors.New("cache miss")
)

// Cache wraps Redis client
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// New creates a new Redis cache client
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		ctx:    context.Background(),
	}
}

func (c *Cache) namespaceKey(key string) string {
	return keyPrefix + key
}

// Get retrieves a value from cache
func (c *Cache) Get(key string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrCacheDisabled
	}
	val, err := c.client.Get(c.ctx, c.namespaceKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Set sets a value in cache with TTL
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Set(c.ctx, c.namespaceKey(key), value, ttl).Err()
}

// Enqueue appends a JSON-encoded item to a FIFO list
func (c *Cache) Enqueue(ctx context.Context, queue string, item interface{}) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	data, err := sonic.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode queue item: %w", err)
	}
	return c.client.LPush(ctx, c.namespaceKey(queue), data).Err()
}

// Dequeue pops up to max raw items in the order they were enqueued
func (c *Cache) Dequeue(ctx context.Context, queue string, max int) ([][]byte, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheDisabled
	}

	key := c.namespaceKey(queue)
	items := make([][]byte, 0, max)
	for len(items) < max {
		data, err := c.client.RPop(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return items, err
		}
		items = append(items, data)
	}
	return items, nil
}

// Requeue puts items back at the consuming end so they are popped first
func (c *Cache) Requeue(ctx context.Context, queue string, items [][]byte) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	if len(items) == 0 {
		return nil
	}
	values := make([]interface{}, len(items))
	for i := range items {
		// RPUSH appends in order, so push the earliest last to pop it first
		values[len(items)-1-i] = items[i]
	}
	return c.client.RPush(ctx, c.namespaceKey(queue), values...).Err()
}

// QueueLen returns the number of pending items
func (c *Cache) QueueLen(ctx context.Context, queue string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheDisabled
	}
	return c.client.LLen(ctx, c.namespaceKey(queue)).Result()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}
