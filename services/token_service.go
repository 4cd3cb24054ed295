package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

// tokenIssuer, üretilen token'ların "iss" claim'i.
const tokenIssuer = "mqvi"

// TokenService, JWT access token doğrulama ve üretme interface'i.
//
// Login/refresh akışı bu servisin kapsamı dışında; token'ı asıl kimlik servisi
// üretir. IssueAccessToken, aynı secret'ı paylaşan geliştirme araçları ve
// testler içindir.
type TokenService interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	IssueAccessToken(user *models.User, ttl time.Duration) (string, error)
}

type tokenService struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewTokenService, constructor. secret boş olamaz (config.Load bunu garanti eder).
func NewTokenService(secret string) TokenService {
	return &tokenService{jwtSecret: []byte(secret), now: time.Now}
}

// ValidateAccessToken, JWT access token'ı doğrular ve claims'i döner.
//
// Sadece HMAC imzalar kabul edilir: "alg: none" veya RS256 ile imzalanmış
// (public key'i secret sanan) token'lar reddedilir.
func (s *tokenService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}

	return claims, nil
}

// IssueAccessToken, kullanıcı için HS256 imzalı bir access token üretir.
func (s *tokenService) IssueAccessToken(user *models.User, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &models.TokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}
