package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akinalp/mqvi-sync/pkg"
)

// ReadReceipt, bir kullanıcının bir konuşmadaki okuma durumunu (watermark) temsil eder.
//
// Watermark pattern: Her mesajı tek tek "okundu" işaretlemek yerine
// "bu mesaja kadar okudum" bilgisini tutarız. Okunmamış mesaj sayısı =
// bu mesajdan sonra gönderilmiş mesaj sayısı.
//
// LastReadAt, işaretleme aksiyonunun zamanıdır — mesajın kendi zamanı DEĞİL.
// Referans verilen mesaj silinirse okuma pozisyonu için fallback cursor budur.
type ReadReceipt struct {
	UserID            string    `json:"user_id"`
	Conversation                // channel_id | dm_channel_id (JSON'da düz alanlar)
	LastReadMessageID string    `json:"last_read_message_id"`
	LastReadAt        time.Time `json:"last_read_at"`
}

// UnreadCount, bir konuşmanın okunmamış mesaj ve mention bilgisini taşır.
// Persist edilmez; ya sorgu anında hesaplanır ya da client'ta push event'lerle yamanır.
type UnreadCount struct {
	Conversation
	UnreadCount       int        `json:"unread_count"`
	MentionCount      int        `json:"mention_count"`
	LastReadMessageID *string    `json:"last_read_message_id,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
}

// MessageReader, bir mesajı okumuş bir kullanıcı ("seen by").
// Receipt'in last_read_at'i mesajın gönderim zamanına eşit veya sonra ise okunmuş sayılır.
type MessageReader struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	LastReadAt  time.Time `json:"last_read_at"`
}

// MarkReadRequest, "buraya kadar okudum" isteği — hem REST hem WS payload'ı.
//
// validate tag'leri go-playground/validator ile kontrol edilir:
// excluded_with + required_without ikilisi "tam olarak biri" kuralını ifade eder.
type MarkReadRequest struct {
	LastReadMessageID string `json:"last_read_message_id" validate:"required,max=64"`
	ChannelID         string `json:"channel_id,omitempty" validate:"required_without=DMChannelID,excluded_with=DMChannelID,max=64"`
	DMChannelID       string `json:"dm_channel_id,omitempty" validate:"required_without=ChannelID,excluded_with=ChannelID,max=64"`
}

// validate, paket genelinde tek validator instance'ı.
// validator.Validate struct metadata'sını cache'ler ve goroutine-safe'tir.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate, isteği doğrular ve Conversation'ı döner.
//
// Conversation kuralı için ParseConversation'ın mesajlarını tercih ederiz —
// validator'ın "Field validation for 'ChannelID' failed on the 'excluded_with' tag"
// mesajı kullanıcıya gösterilecek kadar net değil.
func (r *MarkReadRequest) Validate() (Conversation, error) {
	r.LastReadMessageID = strings.TrimSpace(r.LastReadMessageID)

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

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", pkg.ErrBadRequest, msg)
}

// describeValidation, validator hatasını kısa bir "alan: kural" mesajına çevirir.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := jsonFieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " is too long"
	default:
		return field + " is invalid"
	}
}

func jsonFieldName(goField string) string {
	switch goField {
	case "LastReadMessageID":
		return "last_read_message_id"
	case "ChannelID":
		return "channel_id"
	case "DMChannelID":
		return "dm_channel_id"
	case "Content":
		return "content"
	case "ThreadParentID":
		return "thread_parent_id"
	default:
		return strings.ToLower(goField)
	}
}
