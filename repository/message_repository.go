package repository

import (
	"context"
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// MessageRepository, mesaj veritabanı işlemleri için interface.
//
// Unread hesaplaması için gereken sayım operasyonları da buradadır:
// tüm sayımlar thread yanıtlarını (thread_parent_id IS NOT NULL) hariç tutar.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	// GetByID, mesajı yazar, reaction ve reply_count bilgileriyle döner.
	GetByID(ctx context.Context, id string) (*models.Message, error)
	Update(ctx context.Context, id, content string, editedAt time.Time) error
	Delete(ctx context.Context, id string) error
	SetPinned(ctx context.Context, id string, pinned bool) error

	// AddReaction idempotenttir — aynı (mesaj, kullanıcı, emoji) tekrar eklenmez.
	AddReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
	// Reactions, mesajın güncel reaction gruplarını döner (boşsa boş slice).
	Reactions(ctx context.Context, messageID string) ([]models.ReactionGroup, error)

	// List, konuşmanın üst seviye mesajlarını en yeniden eskiye döner.
	// beforeID boş değilse o mesajdan daha eski olanlar gelir (cursor pagination).
	List(ctx context.Context, conv models.Conversation, beforeID string, limit int) ([]models.Message, error)
	// ListReplies, bir thread'in yanıtlarını en eskiden yeniye döner.
	ListReplies(ctx context.Context, parentID, afterID string, limit int) ([]models.Message, error)
	// ReplyStats, thread parent'ının yanıt sayısı ve son yanıt zamanı.
	ReplyStats(ctx context.Context, parentID string) (count int, lastReplyAt *time.Time, err error)

	// GetRef, mesajın konuşma ve gönderim zamanını döner. Yoksa pkg.ErrNotFound.
	GetRef(ctx context.Context, id string) (*models.MessageRef, error)
	// GetRefs, verilen ID'lerin var olanlarını tek (veya chunk'lı) sorguda döner.
	// Silinmiş mesajlar map'te bulunmaz.
	GetRefs(ctx context.Context, ids []string) (map[string]models.MessageRef, error)

	// CountUnread, konuşmadaki üst seviye mesajları sayar.
	// after nil ise hepsi, değilse created_at > after olanlar.
	CountUnread(ctx context.Context, conv models.Conversation, after *time.Time) (int, error)
	// CountAllGrouped, verilen konuşmaların tüm üst seviye mesajlarını tek
	// gruplu sorguda sayar. Sonuç conv.Key() ile indekslenir; mesajı olmayan
	// konuşmalar map'te bulunmaz.
	CountAllGrouped(ctx context.Context, convs []models.Conversation) (map[string]int, error)
}
