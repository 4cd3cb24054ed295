package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akinalp/mqvi-sync/broker"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg/ratelimit"
)

// publishTimeout, tek bir oda yayınının broker'a teslim süresi üst sınırı.
const publishTimeout = 5 * time.Second

// EventPublisher, service katmanının WebSocket event'leri broadcast etmek için
// kullandığı interface.
//
// Dependency Inversion: Service'ler Hub'ın concrete struct'ına değil,
// bu interface'e bağımlıdır. Böylece:
// 1. Service test edilirken kaydedici (recorder) bir EventPublisher kullanılabilir
// 2. Hub implementasyonu (tek node / broker'lı) değişse bile service kodu etkilenmez
type EventPublisher interface {
	BroadcastToRoom(room string, event Event)
	BroadcastToUser(userID string, event Event)
	BroadcastToAll(event Event)
	GetOnlineUserIDs() []string
}

// RoomResolver, subscribe_rooms isteğinde kullanıcının katılacağı odaları döner.
// main.go'da ConversationRepository ile bağlanır.
type RoomResolver func(ctx context.Context, userID string) ([]string, error)

// Hub, tüm WebSocket bağlantılarını ve odaları yöneten merkezi yapıdır.
//
// Oda (room) nedir?
// Bir event'in hedef kitlesi. Her bağlantı kayıt olurken "user:<id>" odasına
// ve genel yayın odasına katılır; subscribe_rooms ile üyesi olduğu
// "channel:<id>" / "dm:<id>" odalarına da katılır.
//
// Yayınlar doğrudan client'lara değil broker'a gider. Broker mesajı her node'a
// (bu node dahil) geri verir, deliver da odanın YEREL üyelerine iletir.
type Hub struct {
	// clients: userID → Client set (bir kullanıcının birden fazla tab'ı olabilir).
	clients map[string]map[*Client]bool
	// rooms: oda adı → Client set.
	rooms map[string]map[*Client]bool

	// mu: clients, rooms ve her Client'ın closed/rooms alanlarını korur.
	// Client.send'e yazan herkes en az RLock tutar; send'i kapatan removeClient Lock tutar.
	// Böylece kapatılmış bir channel'a yazma (panic) mümkün olmaz.
	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// seq: Her outbound event'e verilen artan sayaç (node başına).
	seq atomic.Int64

	broker broker.Broker

	// Callback'ler main.go'da (init_callbacks.go) set edilir, Start'tan önce.
	onUserFirstConnect      func(userID string)
	onUserFullyDisconnected func(userID string)
	onPresenceManualUpdate  func(userID string, status models.UserStatus)
	roomResolver            RoomResolver

	readState *readStateDeps
}

// readStateDeps, mark_read op'unun ihtiyaç duyduğu bağımlılıklar.
type readStateDeps struct {
	marker      ReadStateMarker
	broadcaster *ReadStateBroadcaster
	limiter     *ratelimit.ActionRateLimiter
}

// NewHub, yeni bir Hub oluşturur. b nil ise yerel (tek process) broker kullanılır.
func NewHub(b broker.Broker) *Hub {
	if b == nil {
		b = broker.NewLocal()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		broker:     b,
	}
}

// OnUserFirstConnect, kullanıcının ilk bağlantısı açıldığında çağrılır (presence: online).
func (h *Hub) OnUserFirstConnect(fn func(userID string)) {
	h.onUserFirstConnect = fn
}

// OnUserFullyDisconnected, kullanıcının son bağlantısı kapandığında çağrılır (presence: offline).
func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) {
	h.onUserFullyDisconnected = fn
}

// OnPresenceManualUpdate, client presence_update gönderdiğinde çağrılır.
func (h *Hub) OnPresenceManualUpdate(fn func(userID string, status models.UserStatus)) {
	h.onPresenceManualUpdate = fn
}

// OnSubscribeRooms, subscribe_rooms isteğinde kullanılacak oda çözücüsünü set eder.
func (h *Hub) OnSubscribeRooms(fn RoomResolver) {
	h.roomResolver = fn
}

// UseReadState, mark_read op'unu etkinleştirir. limiter nil olabilir (limitsiz).
func (h *Hub) UseReadState(marker ReadStateMarker, broadcaster *ReadStateBroadcaster, limiter *ratelimit.ActionRateLimiter) {
	h.readState = &readStateDeps{marker: marker, broadcaster: broadcaster, limiter: limiter}
}

// Start, broker aboneliğini açar ve Hub'ın event loop'unu ayrı goroutine'de başlatır.
//
// Abonelik senkron yapılır: Start döndükten sonra yapılan hiçbir yayın kaçmaz.
// ctx iptal edildiğinde loop durur ve tüm bağlantılar kapatılır.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.broker.Subscribe(ctx, h.deliver); err != nil {
		return fmt.Errorf("failed to subscribe hub to broker: %w", err)
	}
	go h.run(ctx)
	return nil
}

// run, Hub'ın ana event loop'udur.
//
// select nedir?
// Birden fazla channel'ı aynı anda dinler.
// Hangi channel'dan veri gelirse o case çalışır.
func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-h.done:
			return
		}
	}
}

// Register, client'ı Hub'a kaydettirir. Hub durmuşsa bloklamadan döner.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister, client'ı Hub'dan çıkarır. Hub durmuşsa bloklamadan döner.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// addClient, client'ı kullanıcı ve varsayılan odalara ekler, ready gönderir
// ve bağlantıyı "active" durumuna geçirir.
func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if c.closed {
		// ReadPump kayıt işlenmeden bitti
		h.mu.Unlock()
		return
	}
	first := len(h.clients[c.userID]) == 0
	if first {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true
	h.joinLocked(c, UserRoom(c.userID), broadcastRoom)
	total := len(h.clients[c.userID])
	h.mu.Unlock()

	c.activate()
	log.Printf("[ws] client connected: user=%s session=%s (total connections for user: %d)",
		c.userID, c.sessionID, total)

	// Callback'ler ayrı goroutine'de: içlerinden yapılan yayınlar Hub mutex'ini tekrar ister
	if first && h.onUserFirstConnect != nil {
		go h.onUserFirstConnect(c.userID)
	}
}

// removeClient, client'ı tüm odalardan çıkarır ve send channel'ını kapatır.
// Kayıt olmamış (henüz işlenmemiş) client'lar için de güvenlidir.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.setState(StateDisconnected)

	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = nil

	last := false
	if clients, ok := h.clients[c.userID]; ok {
		if _, exists := clients[c]; exists {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.clients, c.userID)
				last = true
			}
		}
	}
	h.mu.Unlock()

	if last {
		log.Printf("[ws] user fully disconnected: %s", c.userID)
		if h.onUserFullyDisconnected != nil {
			go h.onUserFullyDisconnected(c.userID)
		}
	} else {
		log.Printf("[ws] client disconnected: user=%s session=%s", c.userID, c.sessionID)
	}
}

// JoinRooms, client'ı verilen odalara ekler. Kapanmış client'larda no-op.
func (h *Hub) JoinRooms(c *Client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	h.joinLocked(c, rooms...)
}

func (h *Hub) joinLocked(c *Client, rooms ...string) {
	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	for _, room := range rooms {
		if _, ok := h.rooms[room]; !ok {
			h.rooms[room] = make(map[*Client]bool)
		}
		h.rooms[room][c] = true
		c.rooms[room] = struct{}{}
	}
}

// BroadcastToRoom, event'i odanın tüm üyelerine (tüm node'larda) gönderir.
func (h *Hub) BroadcastToRoom(room string, event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal %s event: %v", event.Op, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, room, data); err != nil {
		log.Printf("[ws] failed to publish %s to room %s: %v", event.Op, room, err)
	}
}

// BroadcastToUser, belirli bir kullanıcının tüm bağlantılarına event gönderir.
func (h *Hub) BroadcastToUser(userID string, event Event) {
	h.BroadcastToRoom(UserRoom(userID), event)
}

// BroadcastToAll, tüm bağlı client'lara event gönderir.
func (h *Hub) BroadcastToAll(event Event) {
	h.BroadcastToRoom(broadcastRoom, event)
}

// deliver, broker'dan gelen yayını odanın yerel üyelerine iletir.
func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		h.trySendLocked(c, payload)
	}
}

// send, tek bir client'a (oda dışı) veri gönderir: ready, heartbeat_ack, error.
func (h *Hub) send(c *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.trySendLocked(c, payload)
}

// trySendLocked, bloklamadan gönderir. Buffer dolu ise client yavaştır → çıkarılır.
// Çağıran en az RLock tutmalıdır.
func (h *Hub) trySendLocked(c *Client, payload []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("[ws] send buffer full for user %s, dropping connection", c.userID)
		go h.Unregister(c)
	}
}

// nextSeq, oda dışı (tek client'a giden) event'ler için de aynı sayacı kullanır.
func (h *Hub) nextSeq() int64 {
	return h.seq.Add(1)
}

// GetOnlineUserIDs, bu node'a bağlı olan tüm kullanıcı ID'lerini döner.
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

// Shutdown, tüm client bağlantılarını kapatır ve loop'u durdurur (graceful shutdown).
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, clients := range h.clients {
			for c := range clients {
				if !c.closed {
					c.closed = true
					close(c.send)
					c.setState(StateDisconnected)
				}
			}
		}
		h.clients = make(map[string]map[*Client]bool)
		h.rooms = make(map[string]map[*Client]bool)
		h.mu.Unlock()

		if err := h.broker.Close(); err != nil {
			log.Printf("[ws] failed to close broker: %v", err)
		}
		log.Println("[ws] hub shut down, all connections closed")
	})
}
