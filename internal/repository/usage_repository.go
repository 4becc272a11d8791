package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"mu-assistant-go/internal/model"
)

// UsageRepository 以 Redis 哈希记录每个用户按模式统计的补全次数。
type UsageRepository interface {
	Record(ctx context.Context, event model.UsageEvent) error
	GetUserUsage(ctx context.Context, userID string) (map[string]int64, error)
}

type redisUsageRepository struct {
	redisClient *redis.Client
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(redisClient *redis.Client) UsageRepository {
	return &redisUsageRepository{redisClient: redisClient}
}

func usageKey(userID string) string {
	return fmt.Sprintf("usage:%s", userID)
}

// Record 累加一次调用；失败的调用额外计入 "<mode>:errors" 字段。
func (r *redisUsageRepository) Record(ctx context.Context, event model.UsageEvent) error {
	key := usageKey(event.UserID)
	pipe := r.redisClient.TxPipeline()
	pipe.HIncrBy(ctx, key, string(event.Mode), 1)
	if event.Status != "ok" {
		pipe.HIncrBy(ctx, key, string(event.Mode)+":errors", 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

func (r *redisUsageRepository) GetUserUsage(ctx context.Context, userID string) (map[string]int64, error) {
	raw, err := r.redisClient.HGetAll(ctx, usageKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	result := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		result[field] = n
	}
	return result, nil
}
