// Package cache wraps Redis for share-link caching and the cross-replica cycle lock.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/pkg/errors"
)

type Redis struct {
	*redis.Client
}

func NewRedis(ctx context.Context, addr string, password string, db int) (*Redis, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "error connecting to Redis at %s", addr)
	}
	return &Redis{Client: c}, nil
}

// Get reports found=false with a nil error when the key does not exist.
func (r *Redis) Get(ctx context.Context, key string) (value string, found bool, err error) {
	value, err = r.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "error getting key: %s", key)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return errors.Wrapf(r.Client.Set(ctx, key, value, ttl).Err(), "error setting key: %s", key)
}
