package repository

import (
	"context"

	"github.com/akinalp/mqvi-sync/models"
)

// ConversationRepository, kullanıcının görebildiği konuşmaları ve üyeliği sorgular.
//
// Görünür konuşmalar:
//   - Üye olunan sunuculardaki text kanalları (voice kanalları mesaj taşımaz)
//   - Katılımcı olunan DM kanalları
type ConversationRepository interface {
	// ListChannels, kullanıcının görebildiği text kanallarını tek sorguda döner.
	ListChannels(ctx context.Context, userID string) ([]models.Conversation, error)
	// ListDMs, kullanıcının katılımcı olduğu DM kanallarını tek sorguda döner.
	ListDMs(ctx context.Context, userID string) ([]models.Conversation, error)
	// IsMember, kullanıcının konuşmaya erişimi olup olmadığını döner.
	IsMember(ctx context.Context, userID string, conv models.Conversation) (bool, error)
	// ListMemberIDs, konuşmanın tüm üyelerinin ID'lerini döner.
	ListMemberIDs(ctx context.Context, conv models.Conversation) ([]string, error)
}
