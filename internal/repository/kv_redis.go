package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type redisKVStore struct {
	redisClient *redis.Client
	prefix      func() string
}

// NewRedisKVStore 使用 Redis 作为持久化后端。prefix 在每次访问时求值，
// 因此切换登录用户后键空间随之切换。
func NewRedisKVStore(redisClient *redis.Client, prefix func() string) KVStore {
	return &redisKVStore{redisClient: redisClient, prefix: prefix}
}

func (s *redisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.redisClient.Get(ctx, s.prefix()+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *redisKVStore) Set(ctx context.Context, key, value string) error {
	// 不设置过期时间：本地数据需要长期保存
	if err := s.redisClient.Set(ctx, s.prefix()+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *redisKVStore) Delete(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.prefix()+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *redisKVStore) Close() error {
	return s.redisClient.Close()
}
