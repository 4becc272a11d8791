package service

import (
	"context"
	"fmt"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
)

// Theme 是界面主题名称。
type Theme string

const (
	ThemeMekelle    Theme = "mekelle"
	ThemeFuturistic Theme = "futuristic"
	ThemeNeoDark    Theme = "neodark"
	ThemeNeoLight   Theme = "neolight"
	ThemeVibrant    Theme = "vibrant"
)

// Themes 列出所有可选主题，第一个为默认值。
var Themes = []Theme{ThemeMekelle, ThemeFuturistic, ThemeNeoDark, ThemeNeoLight, ThemeVibrant}

// OnboardingService 管理首次使用引导、高级会员欢迎页与主题偏好等本地标记。
type OnboardingService interface {
	ShouldShowOnboarding(ctx context.Context) (bool, error)
	MarkOnboardingViewed(ctx context.Context) error
	// ShouldShowPremiumWelcome 仅在用户刚成为高级会员且从未展示过欢迎页时返回 true。
	ShouldShowPremiumWelcome(ctx context.Context, user *model.User, wasPremium bool) (bool, error)
	MarkPremiumWelcomeShown(ctx context.Context) error
	Theme(ctx context.Context) Theme
	SetTheme(ctx context.Context, theme Theme) error
}

type onboardingService struct {
	flags repository.FlagRepository
}

// NewOnboardingService 创建一个新的 OnboardingService。
func NewOnboardingService(flags repository.FlagRepository) OnboardingService {
	return &onboardingService{flags: flags}
}

func (s *onboardingService) ShouldShowOnboarding(ctx context.Context) (bool, error) {
	viewed, err := s.flags.IsSet(ctx, repository.OnboardingViewedKey)
	if err != nil {
		return false, err
	}
	return !viewed, nil
}

func (s *onboardingService) MarkOnboardingViewed(ctx context.Context) error {
	return s.flags.Set(ctx, repository.OnboardingViewedKey)
}

func (s *onboardingService) ShouldShowPremiumWelcome(ctx context.Context, user *model.User, wasPremium bool) (bool, error) {
	if user == nil || !user.IsPremium || wasPremium {
		return false, nil
	}
	shown, err := s.flags.IsSet(ctx, repository.PremiumWelcomeShownKey)
	if err != nil {
		return false, err
	}
	return !shown, nil
}

func (s *onboardingService) MarkPremiumWelcomeShown(ctx context.Context) error {
	return s.flags.Set(ctx, repository.PremiumWelcomeShownKey)
}

// Theme 返回保存的主题；未保存、读取失败或值无法识别时返回默认主题。
func (s *onboardingService) Theme(ctx context.Context) Theme {
	v, err := s.flags.GetString(ctx, repository.ThemeKey)
	if err != nil {
		return Themes[0]
	}
	for _, t := range Themes {
		if string(t) == v {
			return t
		}
	}
	return Themes[0]
}

func (s *onboardingService) SetTheme(ctx context.Context, theme Theme) error {
	for _, t := range Themes {
		if t == theme {
			return s.flags.SetString(ctx, repository.ThemeKey, string(theme))
		}
	}
	return fmt.Errorf("unknown theme %q", theme)
}
