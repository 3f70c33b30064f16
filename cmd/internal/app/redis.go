package app

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisURL      = errors.New("app: invalid redis url")
	ErrRedisNotReady = errors.New("app: redis not ready")
)

// ConnectRedis parses cfg.RedisURL and pings the server, retrying
// cfg.RedisRetryAttempts times within cfg.RedisConnectTimeout.
func ConnectRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Join(ErrRedisURL, err)
	}

	timeout := cfg.RedisConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := max(cfg.RedisRetryAttempts, 1)
	var lastErr error
	for range attempts {
		client := redis.NewClient(opt)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RedisRetryInterval):
		}
	}
	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
