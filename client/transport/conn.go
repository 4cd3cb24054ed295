// Package transport, sunucunun /ws gateway'ine bağlanan, koptuğunda kendini
// yeniden bağlayan WebSocket client'ı.
//
// Akış (her bağlanma denemesi):
//  1. ws://host/ws?token=JWT dial edilir
//  2. Server "ready" gönderir → bağlantı aktif; OnConnect hook'ları çalışır
//  3. readPump gelen zarfları op listener'larına senkron iletir
//  4. writePump gönderim kuyruğunu yazar ve heartbeat atar
//  5. Bağlantı koparsa backoff ile tekrar dial edilir
//
// Listener'lar ve hook'lar read goroutine'inde çalışır. Bir bağlantının
// event'leri tek goroutine'den, geliş sırasıyla teslim edilir.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/mqvi-sync/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256

	// closeInvalidToken, server'ın geçersiz token için kullandığı close kodu.
	// Bu kodla kapanan bağlantı yeniden denenmez.
	closeInvalidToken = 4001

	defaultHeartbeat  = 30 * time.Second
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

var (
	// ErrNotConnected, aktif bağlantı yokken Send çağrıldığında döner.
	ErrNotConnected = errors.New("not connected")
	// ErrUnauthorized, server token'ı reddettiğinde Run'dan döner.
	ErrUnauthorized = errors.New("token rejected by server")
)

// Options, bağlantı ayarları.
type Options struct {
	URL        string            // ör: ws://localhost:9090/ws
	Token      func() string     // her dial'da çağrılır (token yenilenmiş olabilir)
	Dialer     *websocket.Dialer // nil ise websocket.DefaultDialer
	Header     http.Header       // opsiyonel ek header'lar (ör: Origin)
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Conn, yeniden bağlanan gateway bağlantısı.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer

	mu              sync.RWMutex
	listeners       map[protocol.Op][]func(protocol.Envelope)
	connectHooks    []func()
	disconnectHooks []func(error)
	connected       bool
	send            chan []byte // aktif bağlantının kuyruğu; bağlantı yokken nil
	sessionID       string
}

// New, bağlantıyı hazırlar. Dial için Run çağrılmalıdır.
func New(opts Options) *Conn {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = defaultMaxBackoff
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Conn{
		opts:      opts,
		dialer:    dialer,
		listeners: make(map[protocol.Op][]func(protocol.Envelope)),
	}
}

// On, op için listener kaydeder. Listener read goroutine'inde çalışır.
func (c *Conn) On(op protocol.Op, fn func(protocol.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[op] = append(c.listeners[op], fn)
}

// OnConnect, her aktif hale gelişte (ready alındığında) çağrılacak hook'u kaydeder.
// Kayıt anında bağlantı zaten aktifse true döner; o bağlanma için hook çağrılmaz.
func (c *Conn) OnConnect(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectHooks = append(c.connectHooks, fn)
	return c.connected
}

// OnDisconnect, aktif bir bağlantı koptuğunda çağrılacak hook'u kaydeder.
func (c *Conn) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHooks = append(c.disconnectHooks, fn)
}

// Connected, bağlantının aktif olup olmadığını döner.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SessionID, son ready event'indeki oturum kimliği.
func (c *Conn) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Send, client op'unu gönderim kuyruğuna ekler.
func (c *Conn) Send(op protocol.Op, data any) error {
	return c.SendWithNonce(op, data, "")
}

// SendWithNonce, isteğe nonce ekler; server'ın error yanıtı aynı nonce'u taşır.
func (c *Conn) SendWithNonce(op protocol.Op, data any, nonce string) error {
	if !protocol.IsClientOp(op) {
		return fmt.Errorf("%w: %q", protocol.ErrUnknownOp, op)
	}
	env, err := protocol.NewEnvelope(op, data, nonce)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", op, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropping %s", op)
	}
}

// Run, ctx iptal edilene kadar bağlanır ve koptukça yeniden bağlanır.
// Server token'ı reddederse ErrUnauthorized ile döner.
func (c *Conn) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		activated, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if activated {
			backoff = c.opts.MinBackoff
		}
		log.Printf("[client] connection lost (%v), reconnecting in %s", err, backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

// session, tek bir bağlantının ömrü. ready alınıp alınmadığını ve kopma sebebini döner.
func (c *Conn) session(ctx context.Context) (activated bool, err error) {
	ws, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	send := make(chan []byte, sendBufferSize)
	heartbeat := make(chan time.Duration, 1)
	done := make(chan struct{})

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		c.writePump(ws, send, heartbeat, done)
	}()

	// ctx iptalinde bloklu ReadMessage'ı çözmek için bağlantıyı kapat.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	activated, err = c.readPump(ws, send, heartbeat)

	wasActive := c.deactivate()
	close(done)
	writerWG.Wait()
	ws.Close()

	if wasActive {
		c.runDisconnectHooks(err)
	}
	return activated, err
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	q := u.Query()
	if c.opts.Token != nil {
		q.Set("token", c.opts.Token())
	}
	u.RawQuery = q.Encode()

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), c.opts.Header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", u.Host, err)
	}
	return ws, nil
}

// readPump, gelen zarfları listener'lara iletir. ready alındığında bağlantıyı
// aktifleştirir ve connect hook'larını listener'lardan ÖNCE çalıştırır.
func (c *Conn) readPump(ws *websocket.Conn, send chan []byte, heartbeat chan<- time.Duration) (activated bool, err error) {
	ws.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == closeInvalidToken {
				return activated, ErrUnauthorized
			}
			return activated, err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[client] malformed envelope: %v", err)
			continue
		}

		if env.Op == protocol.OpReady && !activated {
			ready, err := protocol.DecodeInto[protocol.ReadyPayload](env)
			if err != nil {
				log.Printf("[client] invalid ready payload: %v", err)
			}
			interval := time.Duration(ready.HeartbeatInterval) * time.Millisecond
			if interval <= 0 {
				interval = defaultHeartbeat
			}
			heartbeat <- interval

			activated = true
			c.activate(send, ready.SessionID)
		}

		c.dispatch(env)
	}
}

// writePump, kuyruğu yazar; heartbeat aralığı ready ile öğrenilir.
func (c *Conn) writePump(ws *websocket.Conn, send <-chan []byte, heartbeat <-chan time.Duration, done <-chan struct{}) {
	var tick <-chan time.Time
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	hb, _ := json.Marshal(protocol.Envelope{Op: protocol.OpHeartbeat})

	for {
		select {
		case interval := <-heartbeat:
			ticker = time.NewTicker(interval)
			tick = ticker.C

		case msg := <-send:
			if err := write(ws, msg); err != nil {
				ws.Close()
				return
			}

		case <-tick:
			if err := write(ws, hb); err != nil {
				ws.Close()
				return
			}

		case <-done:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func write(ws *websocket.Conn, msg []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *Conn) activate(send chan []byte, sessionID string) {
	c.mu.Lock()
	c.connected = true
	c.send = send
	c.sessionID = sessionID
	hooks := append([]func(){}, c.connectHooks...)
	c.mu.Unlock()

	for _, h := range hooks {
		h()
	}
}

func (c *Conn) deactivate() (wasActive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasActive = c.connected
	c.connected = false
	c.send = nil
	return wasActive
}

func (c *Conn) runDisconnectHooks(err error) {
	c.mu.RLock()
	hooks := append([]func(error){}, c.disconnectHooks...)
	c.mu.RUnlock()
	for _, h := range hooks {
		h(err)
	}
}

func (c *Conn) dispatch(env protocol.Envelope) {
	c.mu.RLock()
	listeners := c.listeners[env.Op]
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(env)
	}
}
