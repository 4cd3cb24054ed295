// Package models, uygulamanın domain modellerini (veri yapıları) tanımlar.
//
// Model nedir?
// Veritabanındaki bir tablonun Go karşılığıdır.
// Aynı zamanda API'den ve WebSocket'ten gelen/giden verilerin şeklini de belirler.
//
// Go'da `json:"username"` gibi tag'ler, struct field'larının JSON'a
// nasıl serialize/deserialize edileceğini belirler.
package models

import (
	"fmt"
	"time"
)

// UserStatus, kullanıcının çevrimiçi durumunu temsil eder.
// Go'da "type alias" ile string'e özel bir tip veririz —
// bu sayede sadece belirli değerlerin kullanılmasını sağlarız.
type UserStatus string

// İzin verilen UserStatus değerleri.
// Go'da enum yoktur, bunun yerine typed constant'lar kullanılır.
const (
	UserStatusOnline  UserStatus = "online"
	UserStatusIdle    UserStatus = "idle"
	UserStatusDND     UserStatus = "dnd"
	UserStatusOffline UserStatus = "offline"
)

// ParseManualStatus, client'ın elle seçebileceği durumları kabul eder.
// "offline" client tarafından set edilemez — son bağlantı kapanınca hub set eder.
func ParseManualStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case UserStatusOnline, UserStatusIdle, UserStatusDND:
		return UserStatus(s), nil
	default:
		return "", badRequest(fmt.Sprintf("invalid status %q", s))
	}
}

// User, bir kullanıcıyı temsil eder.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName *string    `json:"display_name"` // *string = nullable — Go'da nil olabilir
	AvatarURL   *string    `json:"avatar_url"`
	Status      UserStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PublicUser, bir kullanıcının diğer kullanıcılara gösterilebilen kimliği.
//
// DM'lerde "seen by" event'i bu alanları taşır — status veya created_at gibi
// alanlar bilinçli olarak dışarıda bırakılır.
type PublicUser struct {
	ID          string  `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// Public, User'dan PublicUser üretir.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
