package models

import (
	"strings"
	"time"
)

// Message, bir chat mesajını temsil eder.
// DB'deki "messages" tablosunun Go karşılığı.
//
// Kanal ve DM mesajları aynı tabloda tutulur: Conversation alanı hangisine
// ait olduğunu söyler (channel_id XOR dm_channel_id, DB'de CHECK constraint).
//
// CreatedAt, mesajın otoriter gönderim zamanıdır (sentAt) — tüm unread ve
// "seen by" karşılaştırmaları bu alan üzerinden yapılır, varış sırası değil.
//
// Author, Reactions ve ReplyCount alanları JOIN/aggregate ile doldurulur.
type Message struct {
	ID string `json:"id"`
	Conversation
	UserID         string     `json:"user_id"`
	Content        string     `json:"content"`
	ThreadParentID *string    `json:"thread_parent_id"` // Nullable — thread yanıtıysa parent mesajın ID'si
	EditedAt       *time.Time `json:"edited_at"`
	CreatedAt      time.Time  `json:"created_at"`
	IsPinned       bool       `json:"is_pinned"`

	Author     *PublicUser     `json:"author,omitempty"`
	Reactions  []ReactionGroup `json:"reactions"`
	ReplyCount int             `json:"reply_count"` // Thread parent'ları için yanıt sayısı
	Mentions   []string        `json:"mentions"`    // Mesajda bahsedilen kullanıcı ID'leri
}

// Key, client cache'lerinin mesajları tekilleştirmek için kullandığı kimlik.
func (m Message) Key() string {
	return m.ID
}

// IsThreadReply, mesajın bir thread yanıtı olup olmadığını döner.
// Thread yanıtları konuşmanın üst seviye unread sayacına dahil edilmez.
func (m Message) IsThreadReply() bool {
	return m.ThreadParentID != nil && *m.ThreadParentID != ""
}

// MessageRef, bir mesajın unread hesaplamasında ihtiyaç duyulan minimum hali:
// hangi konuşmada ve ne zaman gönderildiği.
// Regression guard ve batch sentAt lookup'ları tam mesajı yüklemez.
type MessageRef struct {
	ID           string
	Conversation Conversation
	SentAt       time.Time
}

// ReactionGroup, bir mesajdaki aynı emojinin toplu görünümü.
//
// Örnek: 👍 3 [user1, user2, user3]
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// MessagePage, cursor-based pagination sonucu.
//
// Cursor-based pagination nedir?
// Offset-based ("LIMIT 50 OFFSET 100") yerine "bu ID'den önceki 50 mesajı getir" kullanır.
// Avantajı: Yeni mesaj eklendiğinde sayfa kayması olmaz.
//
// Messages en yeniden en eskiye sıralıdır. NextCursor, bir sonraki (daha eski)
// sayfa için "before" parametresidir — HasMore false ise boştur.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"has_more"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// CreateMessageRequest, yeni mesaj gönderme isteği.
type CreateMessageRequest struct {
	ChannelID      string  `json:"channel_id,omitempty" validate:"max=64"`
	DMChannelID    string  `json:"dm_channel_id,omitempty" validate:"max=64"`
	Content        string  `json:"content" validate:"required,max=2000"`
	ThreadParentID *string `json:"thread_parent_id,omitempty" validate:"omitempty,max=64"`
}

// Validate, isteği doğrular ve hedef konuşmayı döner.
// İçerik 1-2000 karakter arası olmalı (validator'ın max kuralı string'lerde rune sayar).
func (r *CreateMessageRequest) Validate() (Conversation, error) {
	r.Content = strings.TrimSpace(r.Content)

	conv, err := ParseConversation(r.ChannelID, r.DMChannelID)
	if err != nil {
		return Conversation{}, err
	}
	r.ChannelID, r.DMChannelID = conv.ChannelID, conv.DMChannelID

	if err := validate.Struct(r); err != nil {
		return Conversation{}, badRequest(describeValidation(err))
	}
	return conv, nil
}

// UpdateMessageRequest, mesaj düzenleme isteği.
type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// Validate, UpdateMessageRequest'in geçerli olup olmadığını kontrol eder.
func (r *UpdateMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if err := validate.Struct(r); err != nil {
		return badRequest(describeValidation(err))
	}
	return nil
}
