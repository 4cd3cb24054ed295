package repository

import (
	"context"
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// ReadStateRepository, watermark (okuma durumu) veritabanı işlemleri için interface.
//
// Her (kullanıcı, konuşma) çifti için tek satır tutulur. Kanal ve DM
// watermark'ları ayrı tablolardadır (channel_reads, dm_reads) — hangi tabloya
// gidileceğini Conversation'ın aktif kolu belirler.
type ReadStateRepository interface {
	// Get, kullanıcının konuşmadaki watermark'ını döner. Yoksa pkg.ErrNotFound.
	Get(ctx context.Context, userID string, conv models.Conversation) (*models.ReadReceipt, error)

	// Upsert, watermark'ı yazar (yoksa oluşturur, varsa yerinde günceller).
	Upsert(ctx context.Context, receipt *models.ReadReceipt) error

	// ListByUser, kullanıcının tüm watermark'larını tek sorguda döner (kanal + DM).
	ListByUser(ctx context.Context, userID string) ([]models.ReadReceipt, error)

	// ListReaders, konuşmada last_read_at >= sentAt olan kullanıcıları profil
	// bilgileriyle döner. excludeUserID boş değilse o kullanıcı hariç tutulur.
	ListReaders(ctx context.Context, conv models.Conversation, sentAt time.Time, excludeUserID string) ([]models.MessageReader, error)
}
