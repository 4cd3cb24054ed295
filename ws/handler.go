package ws

import (
	"log"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/akinalp/mqvi-sync/models"
)

// CloseInvalidToken, token doğrulaması başarısız olduğunda gönderilen close kodu.
// 4000-4999 aralığı uygulamaya ayrılmıştır.
const CloseInvalidToken = 4001

// TokenValidator, WebSocket handler'ın JWT doğrulaması için kullandığı interface.
//
// Interface Segregation: WS handler'ın token servisinin tamamına ihtiyacı yok,
// sadece ValidateAccessToken yeterli. main.go'da tokenService bunu implicit karşılar.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
	upgrader       websocket.Upgrader
}

// NewHandler, yeni bir WebSocket handler oluşturur.
// allowedOrigins "*" içeriyorsa tüm origin'lere izin verilir (development).
func NewHandler(hub *Hub, tokenValidator TokenValidator, allowedOrigins []string) *Handler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Tarayıcı dışı client'lar (CLI, testler) Origin göndermez
				return allowAll || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleConnection, HTTP bağlantısını WebSocket'e yükseltir ve client'ı Hub'a kaydeder.
//
// Tarayıcılar WebSocket isteğine header ekleyemediği için token query parameter'dır:
//
//	ws://server/ws?token=JWT_TOKEN
//
// Flow:
//  1. Token yoksa HTTP 401 (upgrade yapılmaz)
//  2. HTTP → WebSocket upgrade, bağlantı "connecting"
//  3. Token doğrulanır → "authenticated"; geçersizse 4001 ile kapatılır
//  4. Hub'a kayıt → ready → "active"
//  5. WritePump ayrı goroutine'de, ReadPump bu goroutine'de çalışır
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	client := newClient(h.hub, conn, uuid.NewString())

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		msg := websocket.FormatCloseMessage(CloseInvalidToken, "invalid token")
		client.writeMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}
	client.authenticate(claims)

	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump() // Bağlantı kapanana kadar bloklar
}
