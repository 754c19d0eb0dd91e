package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// BlankCache keeps blank-page verdicts in Redis so that every worker and
// every run shares them. It implements blank.RemoteCache.
type BlankCache struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewBlankCache connects to redisURL. A non-positive ttl keeps entries forever.
func NewBlankCache(redisURL string, ttl time.Duration) (*BlankCache, error) {
	c, err := connect(redisURL)
	if err != nil {
		return nil, err
	}
	return NewBlankCacheFromClient(c, ttl), nil
}

// NewBlankCacheFromClient reuses an existing client.
func NewBlankCacheFromClient(c *redis.Client, ttl time.Duration) *BlankCache {
	return &BlankCache{client: c, keyNS: "blank", ttl: ttl}
}

func (b *BlankCache) key(k string) string { return fmt.Sprintf("%s:%s", b.keyNS, k) }

func (b *BlankCache) GetVerdict(ctx context.Context, key string) (bool, bool, error) {
	v, err := b.client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

func (b *BlankCache) SetVerdict(ctx context.Context, key string, blank bool) error {
	v := "0"
	if blank {
		v = "1"
	}
	ttl := b.ttl
	if ttl < 0 {
		ttl = 0
	}
	return b.client.Set(ctx, b.key(key), v, ttl).Err()
}

func (b *BlankCache) Close() error { return b.client.Close() }

func connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}
