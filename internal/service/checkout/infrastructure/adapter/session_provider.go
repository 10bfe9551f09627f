// internal/service/checkout/infrastructure/adapter/session_provider.go
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

// TokenSessionProvider 持有登录后拿到的会话令牌。
// 客户端没有签名密钥，只解析声明判断是否过期，签名由服务端校验。
type TokenSessionProvider struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenSessionProvider(token string) *TokenSessionProvider {
	return &TokenSessionProvider{token: token, now: time.Now}
}

// SetToken 在登录或刷新后替换令牌，传空串表示登出。
func (p *TokenSessionProvider) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

func (p *TokenSessionProvider) Current(_ context.Context) (*domain.Session, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == "" {
		return nil, port.ErrNoSession
	}

	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(port.ErrNoSession, err.Error())
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(port.ErrNoSession, "token has no subject")
	}
	if claims.ExpiresAt != 0 && p.now().Unix() >= claims.ExpiresAt {
		return nil, errors.Wrap(port.ErrNoSession, "token expired")
	}
	return &domain.Session{UserID: claims.Subject, Token: token}, nil
}
