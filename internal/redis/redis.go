// Package redis 封装 go-redis 客户端的创建与连通性检查
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"channel_relay/internal/config"
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// NewClient 创建客户端并 PING 验证
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// InitFromConfig 从应用配置初始化 Redis 客户端
func InitFromConfig(cfg *config.Config) (*redis.Client, error) {
	return NewClient(Config{
		Addr:     cfg.State.RedisAddr,
		Password: cfg.State.RedisPassword,
		DB:       cfg.State.RedisDB,
	})
}
