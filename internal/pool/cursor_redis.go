package pool

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

const defaultCursorKey = "snapkit:pool:cursor"

// RedisCursor advances the rotation with INCR, shared by every server instance.
type RedisCursor struct {
	client goredis.Cmdable
	key    string
}

// RedisOption configures RedisCursor.
type RedisOption func(*RedisCursor)

// WithCursorKey sets the Redis key (default "snapkit:pool:cursor").
func WithCursorKey(key string) RedisOption {
	return func(c *RedisCursor) {
		if key != "" {
			c.key = key
		}
	}
}

func NewRedisCursor(client goredis.Cmdable, opts ...RedisOption) *RedisCursor {
	c := &RedisCursor{client: client, key: defaultCursorKey}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCursor) Next(ctx context.Context) (int64, error) {
	return c.client.Incr(ctx, c.key).Result()
}

// NewRedisClient creates a client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
