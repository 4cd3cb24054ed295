package cache

import (
	"sync"

	"github.com/akinalp/mqvi-sync/models"
)

// MessageIndex, mesaj ID → konuşma key'i eşlemesi.
//
// reaction_update ve message_pin gibi event'ler mesajın hangi konuşmaya ait
// olduğunu her zaman taşımaz. Index, bu event'leri doğru cache'e yönlendirir.
//
// Global değildir: sahibi konuşma görünümüdür (açılırken oluşturulur,
// kapanırken Reset edilir) ve constructor ile geçirilir. Testler kendi
// instance'larını kullanır.
type MessageIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMessageIndex, boş bir index oluşturur.
func NewMessageIndex() *MessageIndex {
	return &MessageIndex{entries: make(map[string]string)}
}

// Track, mesajın konuşmasını kaydeder.
func (x *MessageIndex) Track(messageID, conversationKey string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[messageID] = conversationKey
}

// TrackMessages, bir sayfa dolusu mesajı tek seferde kaydeder.
func (x *MessageIndex) TrackMessages(msgs []models.Message) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, m := range msgs {
		x.entries[m.ID] = m.Conversation.Key()
	}
}

// Lookup, mesajın konuşma key'ini döner.
func (x *MessageIndex) Lookup(messageID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	key, ok := x.entries[messageID]
	return key, ok
}

// Forget, silinen mesajı index'ten çıkarır.
func (x *MessageIndex) Forget(messageID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, messageID)
}

// Reset, görünüm kapandığında tüm kayıtları bırakır.
func (x *MessageIndex) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[string]string)
}

// Len, izlenen mesaj sayısı.
func (x *MessageIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
