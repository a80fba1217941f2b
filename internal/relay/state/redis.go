package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"channel_relay/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisStore 基于 Redis Hash 的去重状态存储（field = 去重键，value = 时间戳）
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 创建 Redis 状态存储
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (Records, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if isWrongType(err) {
		logger.L().Warnf("Forward state at redis key %s is corrupt, starting empty: %v", s.key, err)
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load forward state from redis: %w", err)
	}
	if len(entries) == 0 {
		logger.L().Infof("No forward state at redis key %s, starting empty", s.key)
	}
	return fromEntries(entries), nil
}

// isWrongType 键存在但不是 Hash，视为损坏的状态
func isWrongType(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.HasPrefix(rerr.Error(), "WRONGTYPE")
}

// Save implements Store. DEL + HSET run inside MULTI/EXEC so readers never see a partial hash.
func (s *RedisStore) Save(ctx context.Context, records Records) error {
	entries := toEntries(records)
	values := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		values[k] = v
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save forward state to redis: %w", err)
	}
	return nil
}
