package models

import "time"

// NotificationType, bildirim türü. Bu çekirdek sadece mention bildirimlerini sayar.
type NotificationType string

const (
	NotificationMention NotificationType = "mention"
)

// Notification, bir kullanıcıya ait bekleyen bildirim.
// Mesajda @ ile bahsedilen her kullanıcı için bir satır oluşturulur.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	MessageID string           `json:"message_id"`
	Conversation
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
