package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, JWT access token'ın içindeki veriler (payload).
//
// Token üretimi (login, refresh) bu servisin işi değildir — sadece doğrulanır.
// Server her HTTP isteğinde ve WS bağlantısında bu claim'leri okur;
// DB'ye gitmeden kullanıcının kim olduğunu bilir.
//
// models paketinde tanımlanır çünkü services, ws ve middleware
// katmanlarının hepsi kullanır (circular dependency önlenir).
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
