package protocol

import (
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// MarkReadPayload, client'ın mark_read isteği.
type MarkReadPayload = models.MarkReadRequest

// PresencePayload, presence_update her iki yönde de bu şekli kullanır.
// Client → Server yalnızca Status gönderir; Server → Client UserID'yi doldurur.
type PresencePayload struct {
	UserID string            `json:"user_id,omitempty"`
	Status models.UserStatus `json:"status"`
}

// ReadyPayload, bağlantı aktif hale geldiğinde gönderilir.
type ReadyPayload struct {
	SessionID         string            `json:"session_id"`
	User              models.PublicUser `json:"user"`
	HeartbeatInterval int               `json:"heartbeat_interval"` // milisaniye
}

// ErrorPayload, başarısız bir client isteğinin yanıtı.
// Message, doğrulama hatalarında aynen iletilir; beklenmeyen hatalarda "internal error".
type ErrorPayload struct {
	Op      Op     `json:"op"`
	Nonce   string `json:"nonce,omitempty"`
	Message string `json:"message"`
}

// ReadStateUpdatePayload, kullanıcının kendi oturumlarına giden watermark güncellemesi.
type ReadStateUpdatePayload struct {
	models.Conversation
	LastReadMessageID string    `json:"last_read_message_id"`
	LastReadAt        time.Time `json:"last_read_at"`
}

// NewReadStateUpdate, persist edilmiş receipt'ten payload üretir.
func NewReadStateUpdate(r *models.ReadReceipt) ReadStateUpdatePayload {
	return ReadStateUpdatePayload{
		Conversation:      r.Conversation,
		LastReadMessageID: r.LastReadMessageID,
		LastReadAt:        r.LastReadAt,
	}
}

// ReadReceiptUpdatePayload, DM katılımcılarına giden "seen by" event'i.
// Okuyan kullanıcının public kimliğini taşır; kanallara asla gönderilmez.
type ReadReceiptUpdatePayload struct {
	models.Conversation
	LastReadMessageID string    `json:"last_read_message_id"`
	LastReadAt        time.Time `json:"last_read_at"`
	models.PublicUser
}

// MessagePayload, message_create ve message_update'in payload'ı.
type MessagePayload = models.Message

// MessageDeletePayload, silinen mesajın kimliği ve konuşması.
type MessageDeletePayload struct {
	ID string `json:"id"`
	models.Conversation
	ThreadParentID *string `json:"thread_parent_id,omitempty"`
}

// ReactionUpdatePayload, bir mesajın güncel reaction listesi.
// Konuşma bilgisi opsiyoneldir. Client message index'i ile yönlendirir.
type ReactionUpdatePayload struct {
	MessageID string `json:"message_id"`
	models.Conversation
	Reactions []models.ReactionGroup `json:"reactions"`
}

// PinPayload, message_pin / message_unpin payload'ı.
type PinPayload struct {
	MessageID string `json:"message_id"`
	models.Conversation
	PinnedBy string `json:"pinned_by,omitempty"`
}

// ThreadUpdatePayload, bir thread parent'ının güncel yanıt sayısı.
type ThreadUpdatePayload struct {
	ParentID string `json:"parent_id"`
	models.Conversation
	ReplyCount  int        `json:"reply_count"`
	LastReplyAt *time.Time `json:"last_reply_at,omitempty"`
}
