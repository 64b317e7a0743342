package db

import (
	"treadmill-relay/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns the client used to mirror live status snapshots, or nil
// when REDIS_ADDR is unset and the relay serves status from memory only.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
