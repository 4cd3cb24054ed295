// Package repository, veritabanı erişim katmanını tanımlar.
//
// Repository Pattern nedir?
// Veritabanı işlemlerini soyutlayan bir tasarım kalıbıdır.
// Service katmanı doğrudan SQL yazmaz — repository interface'i üzerinden çalışır.
//
// Neden interface?
//  1. Test: service testlerinde gerçek repository bir sayaçla sarılabilir
//     (ör. "hiç yazma yapılmadı" kontrolü)
//  2. Esneklik: SQLite'tan başka bir veritabanına geçmek için sadece yeni implementasyon yazılır
//
// Go'da interface "implicit"tır — bir struct, interface'deki tüm method'ları
// implement ediyorsa otomatik olarak o interface'i sağlar.
package repository

import (
	"context"

	"github.com/akinalp/mqvi-sync/models"
)

// UserRepository, kullanıcı kimliği sorguları için interface.
// Kayıt/giriş bu servisin işi değildir; kullanıcılar dış sistem tarafından oluşturulur.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateStatus(ctx context.Context, userID string, status models.UserStatus) error
}
