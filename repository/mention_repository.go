package repository

import (
	"context"
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// MentionRepository, mention bildirimlerini yazar ve sayar.
//
// Mention sayısı = kullanıcının konuşmadaki okunmamış (is_read = 0)
// "mention" tipli bildirim sayısı.
type MentionRepository interface {
	// Create, mesajda bahsedilen her kullanıcı için bir bildirim satırı ekler (batch INSERT).
	Create(ctx context.Context, messageID string, conv models.Conversation, userIDs []string, at time.Time) error
	// DeleteByMessageID, mesajın bildirimlerini siler (mesaj silinince veya düzenlenince).
	DeleteByMessageID(ctx context.Context, messageID string) error

	// CountUnread, after nil ise tüm okunmamış mention'ları, değilse
	// created_at > after olanları sayar.
	CountUnread(ctx context.Context, userID string, conv models.Conversation, after *time.Time) (int, error)
	// CountUnreadGrouped, eşik olmadan tek gruplu sorguda sayar. Sonuç conv.Key() ile
	// indekslenir; mention'ı olmayan konuşmalar map'te bulunmaz.
	CountUnreadGrouped(ctx context.Context, userID string, convs []models.Conversation) (map[string]int, error)
}
