package repository

import (
	"context"
)

// 与对话集合相互独立的本地标记，每个标记单独一个键。
const (
	OnboardingViewedKey    = "mu_ai_onboarding_viewed"
	PremiumWelcomeShownKey = "mu_premium_welcome_shown"
	ThemeKey               = "mu_ai_theme"
	flagTrue               = "true"
)

// FlagRepository 读写首次使用引导、主题等零散标记。
type FlagRepository interface {
	IsSet(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string) error
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
}

type kvFlagRepository struct {
	kv KVStore
}

// NewFlagRepository 创建一个新的 FlagRepository 实例。
func NewFlagRepository(kv KVStore) FlagRepository {
	return &kvFlagRepository{kv: kv}
}

func (r *kvFlagRepository) IsSet(ctx context.Context, key string) (bool, error) {
	v, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && v == flagTrue, nil
}

func (r *kvFlagRepository) Set(ctx context.Context, key string) error {
	return r.kv.Set(ctx, key, flagTrue)
}

func (r *kvFlagRepository) GetString(ctx context.Context, key string) (string, error) {
	v, _, err := r.kv.Get(ctx, key)
	return v, err
}

func (r *kvFlagRepository) SetString(ctx context.Context, key, value string) error {
	return r.kv.Set(ctx, key, value)
}
