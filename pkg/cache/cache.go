// Package cache opens the redis client shared by the order store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orderboard/pkg/config"
	"orderboard/pkg/logger"
)

func Connect(ctx context.Context, cfg *config.Redis, mylog logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	mylog.Action("cache_connected").Info("Connected to Redis", "addr", cfg.Addr)
	return client, nil
}
