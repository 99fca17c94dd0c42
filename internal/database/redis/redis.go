package redis

import (
	"context"
	"fmt"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/go-redis/redis/v8"
)

// New connects to Redis and verifies the connection. The caller owns the client and must Close it.
func New(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	log.Info(fmt.Sprintf("Connected to Redis at %s", cfg.Address))
	return rdb, nil
}

// HealthCheck pings the client.
func HealthCheck(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return rdb.Ping(ctx).Err()
}
