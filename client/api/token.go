package api

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/mqvi-sync/models"
)

// ClaimsFromToken, access token'ın claim'lerini imza DOĞRULAMADAN okur.
//
// Client secret'ı bilmez; imzayı sunucu her istekte doğrular. Burada sadece
// "ben kimim" bilgisi (kendi mesajlarını unread'den düşmek için) çıkarılır.
func ClaimsFromToken(token string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("access token has no user_id claim")
	}
	return claims, nil
}
