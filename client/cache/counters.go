package cache

import (
	"time"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
)

// Counter, bir konuşmanın client tarafındaki okunmamış durumu.
type Counter struct {
	Unread            int
	Mention           int
	LastReadMessageID string
	LastReadAt        time.Time
}

// Counters, konuşma key'i ("channel:<id>" / "dm:<id>") → Counter eşlemesinin
// değişmez (immutable) snapshot'ı. Sıfır değeri ve nil boş snapshot'tır.
type Counters struct {
	entries map[string]Counter
}

// NewCounters, verilen eşlemeden snapshot oluşturur (map kopyalanır).
func NewCounters(entries map[string]Counter) *Counters {
	c := &Counters{entries: make(map[string]Counter, len(entries))}
	for k, v := range entries {
		c.entries[k] = v
	}
	return c
}

// Get, konuşmanın sayacını döner.
func (c *Counters) Get(key string) (Counter, bool) {
	if c == nil {
		return Counter{}, false
	}
	v, ok := c.entries[key]
	return v, ok
}

// Len, takip edilen konuşma sayısı.
func (c *Counters) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// TotalUnread, tüm konuşmaların okunmamış toplamı (ör: uygulama rozeti).
func (c *Counters) TotalUnread() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, v := range c.entries {
		total += v.Unread
	}
	return total
}

// with, tek bir key'i değiştirilmiş yeni snapshot döner.
func (c *Counters) with(key string, v Counter) *Counters {
	next := &Counters{entries: make(map[string]Counter, c.Len()+1)}
	if c != nil {
		for k, old := range c.entries {
			next.entries[k] = old
		}
	}
	next.entries[key] = v
	return next
}

// NewMessage, sayaç güncellemesi için gereken mesaj bilgisi.
type NewMessage struct {
	ConversationKey string
	AuthorID        string
	ThreadReply     bool
}

// NewMessageFrom, message_create payload'ından NewMessage üretir.
func NewMessageFrom(m models.Message) NewMessage {
	return NewMessage{
		ConversationKey: m.Conversation.Key(),
		AuthorID:        m.UserID,
		ThreadReply:     m.IsThreadReply(),
	}
}

// ApplyNewMessage, yeni mesaj geldiğinde konuşmanın unread sayacını 1 artırır.
//
// Mesajı mevcut kullanıcı yazdıysa veya mesaj bir thread yanıtıysa sayaç
// değişmez (server'daki unread tanımı da yanıtları saymaz). Sayacı olmayan
// konuşma için 1'den başlayan yeni sayaç oluşturulur.
func ApplyNewMessage(c *Counters, msg NewMessage, currentUserID string) *Counters {
	if msg.AuthorID == currentUserID || msg.ThreadReply {
		return c
	}
	v, _ := c.Get(msg.ConversationKey)
	v.Unread++
	return c.with(msg.ConversationKey, v)
}

// ApplyReadState, read_state_update geldiğinde konuşmayı okunmuş sayar:
// unread ve mention sıfırlanır, yeni watermark kaydedilir.
//
// Bu, server'dan taze bir fetch'in üreteceği sonucun aynısıdır; round trip
// beklenmeden uygulanır. Kayıtlı watermark'tan yeni olmayan (aynı veya daha
// eski last_read_at) bir update yok sayılır: o watermark'tan sonra gelen
// mesajlar hâlâ okunmamıştır.
func ApplyReadState(c *Counters, update protocol.ReadStateUpdatePayload) *Counters {
	key := update.Conversation.Key()
	if v, ok := c.Get(key); ok && !v.LastReadAt.IsZero() && !update.LastReadAt.After(v.LastReadAt) {
		return c
	}
	return c.with(key, Counter{
		LastReadMessageID: update.LastReadMessageID,
		LastReadAt:        update.LastReadAt,
	})
}

// SetCounts, sayaçları bir fetch sonucuyla tamamen değiştirir.
func SetCounts(_ *Counters, counts []models.UnreadCount) *Counters {
	next := &Counters{entries: make(map[string]Counter, len(counts))}
	for _, uc := range counts {
		next.entries[uc.Conversation.Key()] = counterFrom(uc)
	}
	return next
}

// SetCount, tek bir konuşmanın sayacını fetch sonucuyla değiştirir.
func SetCount(c *Counters, uc models.UnreadCount) *Counters {
	return c.with(uc.Conversation.Key(), counterFrom(uc))
}

func counterFrom(uc models.UnreadCount) Counter {
	v := Counter{Unread: uc.UnreadCount, Mention: uc.MentionCount}
	if uc.LastReadMessageID != nil {
		v.LastReadMessageID = *uc.LastReadMessageID
	}
	if uc.LastReadAt != nil {
		v.LastReadAt = *uc.LastReadAt
	}
	return v
}
