// Package cache provides the redis connection backing the session store and the rate limiter.
// It supports both embedded Redis (miniredis) and an external Redis server.
package cache

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/redis/go-redis/v9"
)

// Redis is a connected redis client, optionally owning an embedded server.
type Redis struct {
	client    *redis.Client
	miniRedis *miniredis.Miniredis
}

// Connect returns a client for addr. If addr is empty an embedded redis is started;
// sessions then live only as long as the process.
func Connect(ctx context.Context, addr, password string) (*Redis, error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded Redis: %w", err)
		}
		logger.Info("Embedded Redis started on ", mr.Addr())
		return &Redis{
			client:    redis.NewClient(&redis.Options{Addr: mr.Addr()}),
			miniRedis: mr,
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logger.Info("Connected to external Redis at ", addr)
	return &Redis{client: client}, nil
}

func (r *Redis) Client() *redis.Client {
	return r.client
}

func (r *Redis) IsEmbedded() bool {
	return r.miniRedis != nil
}

// Close closes the connection and stops the embedded server if running.
func (r *Redis) Close() error {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			return err
		}
	}
	if r.miniRedis != nil {
		r.miniRedis.Close()
	}
	return nil
}
