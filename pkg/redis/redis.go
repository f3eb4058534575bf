package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/nexe/nexe-backend/config"
	"github.com/nexe/nexe-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 3 * time.Second
	pingTimeout = 5 * time.Second
)

var client redis.UniversalClient

// Options maps the configuration onto go-redis. Several hosts select a cluster
// client, one host a plain client.
func Options(cfg *config.RedisConfig) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:       cfg.Addrs(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: dialTimeout,
	}
}

// Init connects and verifies the server answers. Callers skip it when redis is
// not configured, and GetClient then returns nil.
func Init(cfg *config.RedisConfig) error {
	opts := Options(cfg)
	logger.Info("Initializing Redis connection", map[string]interface{}{
		"addrs":     opts.Addrs,
		"db":        opts.DB,
		"pool_size": opts.PoolSize,
	})

	c := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		logger.Error("Failed to connect to Redis", err, map[string]interface{}{
			"addrs": opts.Addrs,
		})
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client = c
	logger.Info("Redis connection established successfully")
	return nil
}

func GetClient() redis.UniversalClient {
	return client
}

func Close() error {
	if client == nil {
		return nil
	}
	logger.Info("Closing Redis connection")
	err := client.Close()
	client = nil
	return err
}
