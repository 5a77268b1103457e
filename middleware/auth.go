package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lendingapp/models"
	"lendingapp/services"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
	roleKey   contextKey = "role"
	claimsKey contextKey = "claims"
)

// TokenParser проверяет токен сессии
type TokenParser interface {
	Parse(tokenString string) (*services.Claims, error)
}

// AuthMiddleware проверяет JWT токен и кладет данные пользователя в контекст
func AuthMiddleware(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем токен из заголовка
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}

			// Убираем префикс "Bearer " если он есть
			tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				if errors.Is(err, services.ErrTokenRevoked) {
					writeError(w, http.StatusUnauthorized, "Session has ended")
					return
				}
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// AdminOnly пропускает только администраторов; ставится после AuthMiddleware
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(roleKey).(models.Role)
		if role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithClaims добавляет информацию о пользователе в контекст
func WithClaims(ctx context.Context, claims *services.Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	ctx = context.WithValue(ctx, emailKey, claims.Email)
	ctx = context.WithValue(ctx, roleKey, claims.Role)
	return context.WithValue(ctx, claimsKey, claims)
}

// GetUserFromContext получает информацию о пользователе из контекста
func GetUserFromContext(r *http.Request) (uint, string, bool) {
	userID, ok := r.Context().Value(userIDKey).(uint)
	if !ok {
		return 0, "", false
	}
	email, _ := r.Context().Value(emailKey).(string)
	return userID, email, true
}

// ClaimsFromContext возвращает claims текущей сессии
func ClaimsFromContext(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*services.Claims)
	return claims, ok
}
