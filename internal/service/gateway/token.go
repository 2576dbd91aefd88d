package gateway

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL — срок жизни сервисного токена.
const DefaultTokenTTL = 5 * time.Minute

// TokenSource выпускает короткоживущие сервисные токены HS256 для вызовов сервиса согласий.
type TokenSource struct {
	secret   []byte
	subject  string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenSource создаёт источник токенов. Пустой secret недопустим.
func NewTokenSource(secret, subject, audience string, ttl time.Duration) (*TokenSource, error) {
	if secret == "" {
		return nil, errors.New("service token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenSource{
		secret:   []byte(secret),
		subject:  subject,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Token подписывает новый токен.
func (s *TokenSource) Token() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
