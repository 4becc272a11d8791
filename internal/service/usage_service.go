package service

import (
	"context"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
)

// UsageService 汇总和查询用户的补全用量。
type UsageService interface {
	Record(ctx context.Context, event model.UsageEvent) error
	GetUserUsage(ctx context.Context, userID string) (map[string]int64, error)
}

type usageService struct {
	repo repository.UsageRepository
}

// NewUsageService 创建一个新的 UsageService 实例。
func NewUsageService(repo repository.UsageRepository) UsageService {
	return &usageService{repo: repo}
}

// Record 由 Kafka 消费者调用，匿名事件直接丢弃。
func (s *usageService) Record(ctx context.Context, event model.UsageEvent) error {
	if event.UserID == "" {
		return nil
	}
	return s.repo.Record(ctx, event)
}

func (s *usageService) GetUserUsage(ctx context.Context, userID string) (map[string]int64, error) {
	return s.repo.GetUserUsage(ctx, userID)
}
