package service

import (
	"fmt"
	"sync"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/pkg/token"
)

// UserProvider 提供当前登录用户。未登录时返回 ok=false。
type UserProvider interface {
	CurrentUser() (*model.User, bool)
}

// TokenUserProvider 以访问令牌表示一次登录会话：SignIn 时解析令牌中的用户资料，SignOut 时清除。
// 它同时为补全客户端提供访问令牌。
type TokenUserProvider struct {
	mu    sync.RWMutex
	token string
	user  *model.User
}

// NewTokenUserProvider 创建一个未登录的 TokenUserProvider。
func NewTokenUserProvider() *TokenUserProvider {
	return &TokenUserProvider{}
}

// SignIn 解析令牌并设为当前会话。令牌格式错误或已过期时返回错误，原会话保持不变。
func (p *TokenUserProvider) SignIn(accessToken string) error {
	claims, err := token.ParseUnverified(accessToken)
	if err != nil {
		return fmt.Errorf("invalid access token: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = accessToken
	p.user = claims.User()
	return nil
}

// SignOut 结束当前会话。
func (p *TokenUserProvider) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.user = nil
}

func (p *TokenUserProvider) CurrentUser() (*model.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil, false
	}
	u := *p.user
	return &u, true
}

// AccessToken 满足 completion.TokenSource 接口。
func (p *TokenUserProvider) AccessToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}
