package ws

import (
	"context"
	"log"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
)

// ReadStateMarker, mark_read'in ihtiyaç duyduğu tek service metodu.
//
// Neden services.ReadStateService yerine kendi interface'imiz?
// services paketi ws.EventPublisher'ı kullanıyor; ws → services import'u
// döngü oluştururdu. main.go'da readStateService bu interface'i otomatik karşılar.
type ReadStateMarker interface {
	// advanced=false: watermark zaten daha ileride, receipt mevcut kayıttır.
	MarkAsRead(ctx context.Context, userID string, req models.MarkReadRequest) (receipt *models.ReadReceipt, advanced bool, err error)
}

// UserLookup, read_receipt_update için okuyan kullanıcının public kimliğini çözer.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ReadStateBroadcaster, persist edilmiş bir receipt'i yayınlar.
// Hem WS mark_read hem REST /api/read-state/mark aynı yayını yapar.
//
// Gizlilik kuralı: Kanallarda kimin neyi okuduğu diğer üyelere gösterilmez.
// read_receipt_update sadece DM odasına gider.
type ReadStateBroadcaster struct {
	hub   EventPublisher
	users UserLookup
}

// NewReadStateBroadcaster, constructor.
func NewReadStateBroadcaster(hub EventPublisher, users UserLookup) *ReadStateBroadcaster {
	return &ReadStateBroadcaster{hub: hub, users: users}
}

// Broadcast, receipt'i kullanıcının kendi oturumlarına ve (DM ise) DM odasına yayınlar.
func (b *ReadStateBroadcaster) Broadcast(ctx context.Context, receipt *models.ReadReceipt) {
	b.hub.BroadcastToUser(receipt.UserID, Event{
		Op:   protocol.OpReadStateUpdate,
		Data: protocol.NewReadStateUpdate(receipt),
	})

	if !receipt.IsDM() {
		return
	}

	user, err := b.users.GetByID(ctx, receipt.UserID)
	if err != nil {
		log.Printf("[ws] read receipt for %s not broadcast, user lookup failed: %v", receipt.Key(), err)
		return
	}

	b.hub.BroadcastToRoom(ConversationRoom(receipt.Conversation), Event{
		Op: protocol.OpReadReceiptUpdate,
		Data: protocol.ReadReceiptUpdatePayload{
			Conversation:      receipt.Conversation,
			LastReadMessageID: receipt.LastReadMessageID,
			LastReadAt:        receipt.LastReadAt,
			PublicUser:        user.Public(),
		},
	})
}
