// Package middleware, REST route'larının önüne takılan ara katmanlar.
//
// Zincir: Auth → Conversation → Handler. Auth kimliği context'e koyar,
// Conversation query'deki konuşmayı doğrulayıp üyeliği kontrol eder.
// Bir katman isteği reddederse zincirin geri kalanı çalışmaz.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/ws"
)

// AuthMiddleware, JWT token doğrulama middleware'ı.
//
// Token doğrulama için WS handler ile aynı interface'i (ws.TokenValidator) kullanır:
// iki giriş noktası da aynı token'ı aynı şekilde kabul eder.
type AuthMiddleware struct {
	tokenValidator ws.TokenValidator
	userRepo       repository.UserRepository
}

// NewAuthMiddleware, constructor.
func NewAuthMiddleware(tokenValidator ws.TokenValidator, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		tokenValidator: tokenValidator,
		userRepo:       userRepo,
	}
}

// Require, "Authorization: Bearer <token>" header'ını zorunlu kılar.
// Token doğrulanır, kullanıcı DB'den yüklenir ve handlers.UserContextKey
// altında context'e konur. Herhangi bir adım başarısızsa 401.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.tokenValidator.ValidateAccessToken(tokenString)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		// Token süresi dolmadan kullanıcı silinmiş olabilir.
		user, err := m.userRepo.GetByID(r.Context(), claims.UserID)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found")
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
