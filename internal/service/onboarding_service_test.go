package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
)

func TestOnboardingService_ShownOnce(t *testing.T) {
	ctx := context.Background()
	svc := NewOnboardingService(repository.NewFlagRepository(newMemKV()))

	show, err := svc.ShouldShowOnboarding(ctx)
	require.NoError(t, err)
	assert.True(t, show)

	require.NoError(t, svc.MarkOnboardingViewed(ctx))
	show, err = svc.ShouldShowOnboarding(ctx)
	require.NoError(t, err)
	assert.False(t, show)
}

func TestOnboardingService_PremiumWelcome(t *testing.T) {
	ctx := context.Background()
	svc := NewOnboardingService(repository.NewFlagRepository(newMemKV()))
	premium := &model.User{UID: "u1", IsPremium: true}
	standard := &model.User{UID: "u1"}

	show, _ := svc.ShouldShowPremiumWelcome(ctx, standard, false)
	assert.False(t, show)
	show, _ = svc.ShouldShowPremiumWelcome(ctx, premium, true)
	assert.False(t, show, "already premium before")
	show, _ = svc.ShouldShowPremiumWelcome(ctx, nil, false)
	assert.False(t, show)

	show, err := svc.ShouldShowPremiumWelcome(ctx, premium, false)
	require.NoError(t, err)
	assert.True(t, show)

	require.NoError(t, svc.MarkPremiumWelcomeShown(ctx))
	show, _ = svc.ShouldShowPremiumWelcome(ctx, premium, false)
	assert.False(t, show)
}

func TestOnboardingService_Theme(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	svc := NewOnboardingService(repository.NewFlagRepository(kv))

	assert.Equal(t, ThemeMekelle, svc.Theme(ctx))
	require.NoError(t, svc.SetTheme(ctx, ThemeVibrant))
	assert.Equal(t, ThemeVibrant, svc.Theme(ctx))
	assert.Error(t, svc.SetTheme(ctx, "rainbow"))
	assert.Equal(t, ThemeVibrant, svc.Theme(ctx))

	kv.data[repository.ThemeKey] = "retro"
	assert.Equal(t, ThemeMekelle, svc.Theme(ctx))
}

func TestTokenUserProvider(t *testing.T) {
	p := NewTokenUserProvider()
	_, ok := p.CurrentUser()
	assert.False(t, ok)

	assert.Error(t, p.SignIn("not-a-jwt"))
	assert.Empty(t, p.AccessToken())
}
