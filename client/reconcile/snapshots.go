package reconcile

import (
	"time"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
)

// Presence, kullanıcı ID → durum snapshot'ı. Değişmezdir; her event yeni
// snapshot üretir. Listede olmayan kullanıcı offline sayılır.
type Presence struct {
	statuses map[string]models.UserStatus
}

func newPresence(list []protocol.PresencePayload) *Presence {
	p := &Presence{statuses: make(map[string]models.UserStatus, len(list))}
	for _, e := range list {
		if e.Status != models.UserStatusOffline {
			p.statuses[e.UserID] = e.Status
		}
	}
	return p
}

// Status, kullanıcının bilinen durumunu döner.
func (p *Presence) Status(userID string) models.UserStatus {
	if p == nil {
		return models.UserStatusOffline
	}
	if s, ok := p.statuses[userID]; ok {
		return s
	}
	return models.UserStatusOffline
}

// Online, offline olmayan kullanıcı sayısı.
func (p *Presence) Online() int {
	if p == nil {
		return 0
	}
	return len(p.statuses)
}

func (p *Presence) with(userID string, status models.UserStatus) *Presence {
	if p.Status(userID) == status {
		return p
	}
	next := &Presence{statuses: make(map[string]models.UserStatus)}
	if p != nil {
		for k, v := range p.statuses {
			next.statuses[k] = v
		}
	}
	if status == models.UserStatusOffline {
		delete(next.statuses, userID)
	} else {
		next.statuses[userID] = status
	}
	return next
}

// Seen, bir DM katılımcısının bilinen son okuma pozisyonu.
type Seen struct {
	User              models.PublicUser
	LastReadMessageID string
	LastReadAt        time.Time
}

// SeenBy, bir DM konuşmasında katılımcıların okuma pozisyonları.
// Sadece read_receipt_update push'ları ile dolar; kanallarda hiç oluşmaz.
type SeenBy struct {
	entries map[string]Seen
}

// Get, kullanıcının okuma pozisyonunu döner.
func (s *SeenBy) Get(userID string) (Seen, bool) {
	if s == nil {
		return Seen{}, false
	}
	v, ok := s.entries[userID]
	return v, ok
}

// withReceipt, watermark'ı uygular. Eski (daha önceki) bir receipt yok sayılır;
// push'lar sırasız gelebilir.
func (s *SeenBy) withReceipt(p protocol.ReadReceiptUpdatePayload) *SeenBy {
	if cur, ok := s.Get(p.PublicUser.ID); ok && !p.LastReadAt.After(cur.LastReadAt) {
		return s
	}
	next := &SeenBy{entries: make(map[string]Seen)}
	if s != nil {
		for k, v := range s.entries {
			next.entries[k] = v
		}
	}
	next.entries[p.PublicUser.ID] = Seen{User: p.PublicUser, LastReadMessageID: p.LastReadMessageID, LastReadAt: p.LastReadAt}
	return next
}
