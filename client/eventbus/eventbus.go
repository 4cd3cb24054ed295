// Package eventbus, tek bir WebSocket bağlantısından gelen server event'lerini
// process içindeki birçok bağımsız tüketiciye dağıtır (fan-out).
//
// Neden bus? Transport'a her ekran/cache ayrı ayrı listener eklerse, yeniden
// bağlanmada listener'lar çoğalır ya da kaybolur. Bunun yerine transport'a
// op başına TEK listener kaydedilir (Bind) ve gelen her zarf bus'a yeniden
// yayınlanır. Tüketiciler sadece bus'a abone olur.
//
// Sözleşme:
//   - Buffer/replay yoktur: geç abone olan geçmiş event'leri almaz.
//   - Aynı op'un her abonesi her yayını alır.
//   - Abonelikten çıkmak sadece gelecekteki teslimatı durdurur.
//   - Handler'lar yayın yapan goroutine'de (transport'un read goroutine'i),
//     abonelik sırasıyla ve senkron çalışır. Bloklamamalıdırlar.
package eventbus

import (
	"log"
	"sync"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
)

// Handler, bir server event'ini işleyen fonksiyon.
type Handler func(env protocol.Envelope)

// Source, bus'ın bağlandığı transport soyutlaması (client/transport.Conn).
type Source interface {
	// On, op için transport seviyesinde listener kaydeder.
	On(op protocol.Op, fn func(protocol.Envelope))
	// OnConnect, her (yeniden) bağlanmada çağrılacak hook'u kaydeder.
	// Kayıt anında bağlantı zaten aktifse true döner. Kayıt ve durum okuma
	// atomiktir; aynı bağlanma için hook ve true dönüşü birlikte görülmez.
	OnConnect(fn func()) (connected bool)
}

// Announcer, bağlanma duyurularını server'a gönderir.
type Announcer interface {
	Send(op protocol.Op, data any) error
}

type subscription struct {
	fn Handler
}

// Bus, op bazlı publish/subscribe.
type Bus struct {
	mu    sync.Mutex
	subs  map[protocol.Op][]*subscription
	bound map[Source]bool
}

// New, boş bir Bus oluşturur.
func New() *Bus {
	return &Bus{
		subs:  make(map[protocol.Op][]*subscription),
		bound: make(map[Source]bool),
	}
}

// Subscribe, op için handler kaydeder ve abonelikten çıkma fonksiyonunu döner.
// Dönen fonksiyon birden fazla çağrılabilir; sadece ilki etkilidir.
func (b *Bus) Subscribe(op protocol.Op, fn Handler) (unsubscribe func()) {
	sub := &subscription{fn: fn}

	b.mu.Lock()
	b.subs[op] = append(b.subs[op], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(op, sub) })
	}
}

// remove, aboneliği listeden çıkarır. Yeni slice oluşturulur; devam eden bir
// Publish'in elindeki snapshot etkilenmez.
func (b *Bus) remove(op protocol.Op, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[op]
	next := make([]*subscription, 0, len(current))
	for _, s := range current {
		if s != target {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(b.subs, op)
		return
	}
	b.subs[op] = next
}

// Publish, zarfı op'un tüm abonelerine sırayla iletir.
// Abone listesinin snapshot'ı üzerinde döner, handler'lar lock dışında çalışır.
func (b *Bus) Publish(env protocol.Envelope) {
	b.mu.Lock()
	subs := b.subs[env.Op]
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(env)
	}
}

// On, tipli abonelik helper'ı. Payload T'ye çözülemezse event loglanır ve atlanır.
//
//	eventbus.On(bus, protocol.OpReadStateUpdate, func(p protocol.ReadStateUpdatePayload) { ... })
func On[T any](b *Bus, op protocol.Op, fn func(T)) (unsubscribe func()) {
	return b.Subscribe(op, func(env protocol.Envelope) {
		payload, err := protocol.DecodeInto[T](env)
		if err != nil {
			log.Printf("[client] dropping %s event: %v", env.Op, err)
			return
		}
		fn(payload)
	})
}

// Bind, bus'ı bir transport'a bağlar:
//   - bilinen her server op'u için transport'a tek listener kaydeder,
//   - her bağlanmada duyuru dizisini (subscribe_rooms, presence_update{online})
//     tam bir kez çalıştıran hook ekler,
//   - transport zaten bağlıysa duyuruyu hemen çalıştırır.
//
// Aynı Source için ikinci Bind çağrısı etkisizdir.
func (b *Bus) Bind(src Source, announce Announcer) {
	b.mu.Lock()
	if b.bound[src] {
		b.mu.Unlock()
		return
	}
	b.bound[src] = true
	b.mu.Unlock()

	for _, op := range protocol.ServerOps() {
		src.On(op, b.Publish)
	}

	if src.OnConnect(func() { runAnnouncements(announce) }) {
		runAnnouncements(announce)
	}
}

// runAnnouncements, bağlanma sonrası server'a gönderilen sabit dizi.
func runAnnouncements(announce Announcer) {
	if err := announce.Send(protocol.OpSubscribeRooms, nil); err != nil {
		log.Printf("[client] subscribe_rooms announcement failed: %v", err)
		return
	}
	if err := announce.Send(protocol.OpPresenceUpdate, protocol.PresencePayload{Status: models.UserStatusOnline}); err != nil {
		log.Printf("[client] presence announcement failed: %v", err)
	}
}
