package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"lendingapp/models"
	"lendingapp/utils"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims - содержимое JWT сессии
type Claims struct {
	UserID uint        `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Token - выданный токен сессии
type Token struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	UserID    uint        `json:"user_id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
}

// TokenService выдает и проверяет JWT; отозванные токены хранятся в памяти до истечения
type TokenService struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewTokenService создает новый экземпляр TokenService
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Issue создает токен для пользователя
func (s *TokenService) Issue(user *models.User) (*Token, error) {
	tokenID, err := utils.GenerateSecureToken(16)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expirationTime := now.Add(s.ttl)
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи токена: %w", err)
	}

	return &Token{
		Token:     tokenString,
		ExpiresAt: expirationTime,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
	}, nil
}

// Parse проверяет подпись, срок и отзыв токена
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Revoke отзывает токен до конца его срока действия
func (s *TokenService) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}

	expiresAt := s.now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Заодно выбрасываем записи, которые истекли сами
	for id, exp := range s.revoked {
		if utils.IsExpired(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.ID] = expiresAt
}
