// Package cache stores stylized results in Redis, keyed by the source image
// and the model that produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stylize:result:"

// Entry is a cached stylization.
type Entry struct {
	PNG []byte
	// Seconds is the inference time reported when the entry was produced
	Seconds float64
}

// Cache wraps a Redis client for result storage
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Key derives the cache key for an encoded image run through model.
func Key(image []byte, model string) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(model))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry stored under key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (entry Entry, ok bool, err error) {
	if c == nil || c.client == nil {
		return Entry{}, false, errors.New("cache client is nil")
	}

	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get result %s: %w", key, err)
	}
	png, found := fields["png"]
	if !found {
		return Entry{}, false, nil
	}

	seconds, err := strconv.ParseFloat(fields["seconds"], 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt entry %s: %w", key, err)
	}
	return Entry{PNG: []byte(png), Seconds: seconds}, true, nil
}

// Set stores entry under key with the specified TTL. A zero TTL keeps it forever.
func (c *Cache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return errors.New("cache client is nil")
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"png", entry.PNG,
			"seconds", strconv.FormatFloat(entry.Seconds, 'g', -1, 64),
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set result %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}
