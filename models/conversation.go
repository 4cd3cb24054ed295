package models

import (
	"fmt"
	"strings"

	"github.com/akinalp/mqvi-sync/pkg"
)

// Conversation, mesajların okunduğu "yer"i temsil eder: ya bir sunucu kanalı
// ya da bir DM kanalı. İkisi birbirini dışlar (tagged union).
//
// Go'da union tipi yoktur; iki string alan tutup "tam olarak biri dolu"
// invariant'ını ParseConversation ile constructor seviyesinde koruruz.
// Sıfır değer (ikisi de boş) geçersizdir — Valid() false döner.
type Conversation struct {
	ChannelID   string `json:"channel_id,omitempty"`
	DMChannelID string `json:"dm_channel_id,omitempty"`
}

// ConversationKind, union'ın hangi kolunun dolu olduğunu belirtir.
type ConversationKind string

const (
	ConversationChannel ConversationKind = "channel"
	ConversationDM      ConversationKind = "dm"
)

// ParseConversation, request'ten gelen iki opsiyonel ID'den Conversation oluşturur.
//
// Hata mesajları kullanıcıya aynen gösterilir (pkg.ErrBadRequest sınıfı).
func ParseConversation(channelID, dmChannelID string) (Conversation, error) {
	channelID = strings.TrimSpace(channelID)
	dmChannelID = strings.TrimSpace(dmChannelID)

	switch {
	case channelID != "" && dmChannelID != "":
		return Conversation{}, fmt.Errorf("%w: channel_id and dm_channel_id are mutually exclusive", pkg.ErrBadRequest)
	case channelID == "" && dmChannelID == "":
		return Conversation{}, fmt.Errorf("%w: exactly one of channel_id or dm_channel_id is required", pkg.ErrBadRequest)
	case channelID != "":
		return Conversation{ChannelID: channelID}, nil
	default:
		return Conversation{DMChannelID: dmChannelID}, nil
	}
}

// ChannelConversation ve DMConversation, ID'si zaten güvenilir olan
// (DB'den okunmuş) konuşmalar için kısa yollardır.
func ChannelConversation(channelID string) Conversation {
	return Conversation{ChannelID: channelID}
}

func DMConversation(dmChannelID string) Conversation {
	return Conversation{DMChannelID: dmChannelID}
}

// Valid, tam olarak bir ID'nin dolu olup olmadığını döner.
func (c Conversation) Valid() bool {
	return (c.ChannelID == "") != (c.DMChannelID == "")
}

// Kind, union'ın aktif kolunu döner.
func (c Conversation) Kind() ConversationKind {
	if c.DMChannelID != "" {
		return ConversationDM
	}
	return ConversationChannel
}

// IsDM, konuşmanın DM olup olmadığını döner.
func (c Conversation) IsDM() bool {
	return c.DMChannelID != ""
}

// ID, aktif koldaki ID'yi döner.
func (c Conversation) ID() string {
	if c.DMChannelID != "" {
		return c.DMChannelID
	}
	return c.ChannelID
}

// Key, konuşmayı tek string ile ifade eder: "channel:<id>" veya "dm:<id>".
// Map key'i, WS room adı ve client cache key'i olarak kullanılır —
// kanal ve DM ID'leri aynı uzayda çakışsa bile key'ler çakışmaz.
func (c Conversation) Key() string {
	return string(c.Kind()) + ":" + c.ID()
}

// ParseConversationKey, Key() çıktısını geri Conversation'a çevirir.
func ParseConversationKey(key string) (Conversation, bool) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Conversation{}, false
	}
	switch ConversationKind(kind) {
	case ConversationChannel:
		return ChannelConversation(id), true
	case ConversationDM:
		return DMConversation(id), true
	default:
		return Conversation{}, false
	}
}
