package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/protocol"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// heartbeatInterval: ready event'inde client'a bildirilen heartbeat aralığı (ms).
	heartbeatInterval = 30_000

	// maxMessageSize: Client'ın gönderebileceği maksimum mesaj boyutu (byte).
	maxMessageSize = 4096

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	sendBufferSize = 256

	// requestTimeout: Tek bir client isteğinin (mark_read vb.) service'te geçirebileceği süre.
	requestTimeout = 10 * time.Second
)

// ConnState, bir bağlantının yaşam döngüsündeki durumu.
//
//	connecting → authenticated → active → disconnected
//
// Sadece active bağlantılar okuma durumu değiştirebilir; heartbeat her durumda kabul edilir.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

var errNotActive = fmt.Errorf("%w: connection is not active", pkg.ErrBadRequest)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
//   - ReadPump: Client'dan gelen mesajları okur ve dispatch eder
//   - WritePump: send channel'ındaki mesajları WebSocket'e yazar
//
// Bir bağlantının event'leri tek goroutine'de (ReadPump) sırayla işlenir:
// aynı oturumdan gelen iki mark_read asla eşzamanlı çalışmaz.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	username  string
	sessionID string

	send  chan []byte
	state atomic.Int32

	// closed ve rooms Hub.mu ile korunur
	closed bool
	rooms  map[string]struct{}

	mu sync.Mutex // conn.WriteMessage çağrılarını korur
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
	}
	c.setState(StateConnecting)
	return c
}

// State, bağlantının güncel durumunu döner.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

// authenticate, doğrulanmış token bilgisini bağlantıya işler.
func (c *Client) authenticate(claims *models.TokenClaims) {
	c.userID = claims.UserID
	c.username = claims.Username
	c.setState(StateAuthenticated)
}

// activate, Hub kaydından sonra bağlantıyı active yapar ve ready gönderir.
// Durum ready'den önce değişir: ready'yi alan client hemen mark_read gönderebilir.
func (c *Client) activate() {
	c.setState(StateActive)
	c.sendEvent(Event{
		Op: protocol.OpReady,
		Data: protocol.ReadyPayload{
			SessionID:         c.sessionID,
			User:              models.PublicUser{ID: c.userID, Username: c.username},
			HeartbeatInterval: heartbeatInterval,
		},
	})
}

// handlerFunc, tek bir client op'unun işleyicisi.
type handlerFunc func(c *Client, env protocol.Envelope)

type opHandler struct {
	fn         handlerFunc
	activeOnly bool
}

// dispatch, client → server op'larının lookup tablosu.
var dispatch = map[protocol.Op]opHandler{
	protocol.OpHeartbeat:      {fn: (*Client).handleHeartbeat},
	protocol.OpMarkRead:       {fn: (*Client).handleMarkRead, activeOnly: true},
	protocol.OpSubscribeRooms: {fn: (*Client).handleSubscribeRooms, activeOnly: true},
	protocol.OpPresenceUpdate: {fn: (*Client).handlePresenceUpdate, activeOnly: true},
}

// ReadPump, WebSocket bağlantısından gelen mesajları okur ve işler.
// Bağlantı kapandığında Hub'dan çıkış yapar ve kaynakları temizler.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// SetReadDeadline: Bu süre içinde mesaj gelmezse Read hata verir.
	// Her heartbeat geldiğinde deadline yenilenir.
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError(env, fmt.Errorf("%w: malformed envelope", pkg.ErrBadRequest))
			continue
		}
		c.handleEvent(env)
	}
}

// handleEvent, gelen zarfı dispatch tablosu üzerinden işler.
func (c *Client) handleEvent(env protocol.Envelope) {
	h, ok := dispatch[env.Op]
	if !ok {
		c.sendError(env, fmt.Errorf("%w: unknown op %q", pkg.ErrBadRequest, env.Op))
		return
	}
	if h.activeOnly && c.State() != StateActive {
		c.sendError(env, errNotActive)
		return
	}
	h.fn(c, env)
}

func (c *Client) handleHeartbeat(env protocol.Envelope) {
	if c.conn != nil {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
	}
	c.sendEvent(Event{Op: protocol.OpHeartbeatAck, Nonce: env.Nonce})
}

// handleMarkRead, mark_read isteğini service'e iletir ve sonucu yayınlar.
//
// Hata durumunda bağlantı açık kalır; client error event'i alır.
// Guard'a takılan (daha eski) işaretlemeler hata değildir ama yayınlanmaz da:
// read_state_update alan her oturum sayacını sıfırlar, oysa watermark'tan
// sonra gelen mesajlar hâlâ okunmamıştır.
func (c *Client) handleMarkRead(env protocol.Envelope) {
	rs := c.hub.readState
	if rs == nil {
		c.sendError(env, errors.New("read state is not configured"))
		return
	}
	if rs.limiter != nil && !rs.limiter.Allow(c.userID) {
		c.sendError(env, pkg.ErrRateLimited)
		return
	}

	req, err := protocol.DecodeInto[protocol.MarkReadPayload](env)
	if err != nil {
		c.sendError(env, fmt.Errorf("%w: invalid mark_read payload", pkg.ErrBadRequest))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	receipt, advanced, err := rs.marker.MarkAsRead(ctx, c.userID, req)
	if err != nil {
		c.sendError(env, err)
		return
	}
	if advanced {
		rs.broadcaster.Broadcast(ctx, receipt)
	}
}

// handleSubscribeRooms, kullanıcıyı üyesi olduğu tüm kanal/DM odalarına katar.
func (c *Client) handleSubscribeRooms(env protocol.Envelope) {
	if c.hub.roomResolver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rooms, err := c.hub.roomResolver(ctx, c.userID)
	if err != nil {
		c.sendError(env, fmt.Errorf("failed to resolve rooms: %w", err))
		return
	}
	c.hub.JoinRooms(c, rooms...)
}

// handlePresenceUpdate, client'ın elle seçtiği durumu işler.
// DB güncelleme ve broadcast main.go'daki OnPresenceManualUpdate callback'indedir.
func (c *Client) handlePresenceUpdate(env protocol.Envelope) {
	p, err := protocol.DecodeInto[protocol.PresencePayload](env)
	if err != nil {
		c.sendError(env, fmt.Errorf("%w: invalid presence payload", pkg.ErrBadRequest))
		return
	}
	status, err := models.ParseManualStatus(string(p.Status))
	if err != nil {
		c.sendError(env, err)
		return
	}
	if c.hub.onPresenceManualUpdate != nil {
		go c.hub.onPresenceManualUpdate(c.userID, status)
	}
}

// sendError, başarısız isteğe error event'i ile yanıt verir.
// Public (kullanıcı kaynaklı) hatalar aynen iletilir; diğerleri loglanır ve
// client'a sadece "internal error" gider.
func (c *Client) sendError(env protocol.Envelope, err error) {
	if !pkg.IsPublic(err) {
		log.Printf("[ws] %s failed for user %s: %v", env.Op, c.userID, err)
	}
	c.sendEvent(Event{
		Op:    protocol.OpError,
		Nonce: env.Nonce,
		Data: protocol.ErrorPayload{
			Op:      env.Op,
			Nonce:   env.Nonce,
			Message: pkg.PublicMessage(err),
		},
	})
}

// sendEvent, client'a tek bir event gönderir (oda yayını değil).
func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.nextSeq()
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for user %s: %v", c.userID, err)
		return
	}
	c.hub.send(c, data)
}

// WritePump, send channel'ındaki mesajları WebSocket bağlantısına yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	// Channel kapatıldı — Hub client'ı çıkardı
	c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// writeMessage, WebSocket'e mesaj yazar (mutex ile korunur).
// gorilla/websocket conn'a aynı anda birden fazla yazma YASAK.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
