// Package main — HTTP route registration.
//
// initRoutes, tüm API endpoint'lerini mux'a bağlar.
// Middleware chain helper'ları burada tanımlıdır:
//   - auth: JWT token doğrulaması
//   - authConv: auth + konuşma üyelik kontrolü
package main

import (
	"fmt"
	"net/http"

	"github.com/akinalp/mqvi-sync/middleware"
	"github.com/akinalp/mqvi-sync/ws"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama kuralı Go 1.22 mux'ında önemsizdir: en spesifik pattern kazanır.
// "/api/messages/{id}/readers" ile "/api/messages/{id}/replies" çakışmaz.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	tokenValidator ws.TokenValidator,
	repos *Repositories,
) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(tokenValidator, repos.User)
	convMw := middleware.NewConversationMiddleware(repos.Conversation)

	// ─── Middleware Chain Helpers ───
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}
	authConv := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(convMw.Require(handler))
	}

	// Health check
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","service":"mqvi-sync"}`)
	})

	// Read state — sorgular konuşma üyeliği ister, mark sadece mesajın
	// belirtilen konuşmaya ait olmasını kontrol eder (service katmanında).
	mux.Handle("GET /api/read-state/unread", authConv(h.ReadState.GetUnread))
	mux.Handle("GET /api/read-state/unreads", auth(h.ReadState.GetUnreads))
	mux.Handle("GET /api/read-state/last-read", authConv(h.ReadState.GetLastRead))
	mux.Handle("POST /api/read-state/mark", auth(h.ReadState.Mark))
	mux.Handle("GET /api/messages/{id}/readers", authConv(h.ReadState.GetReaders))

	// Messages — üyelik kontrolü service katmanında (mesajın konuşmasına göre)
	mux.Handle("GET /api/messages", auth(h.Message.List))
	mux.Handle("POST /api/messages", auth(h.Message.Create))
	mux.Handle("PATCH /api/messages/{id}", auth(h.Message.Update))
	mux.Handle("DELETE /api/messages/{id}", auth(h.Message.Delete))
	mux.Handle("GET /api/messages/{id}/replies", auth(h.Message.ListReplies))

	// Reactions & pins
	mux.Handle("PUT /api/messages/{id}/reactions/{emoji}", auth(h.Reaction.Add))
	mux.Handle("DELETE /api/messages/{id}/reactions/{emoji}", auth(h.Reaction.Remove))
	mux.Handle("PUT /api/messages/{id}/pin", auth(h.Pin.Pin))
	mux.Handle("DELETE /api/messages/{id}/pin", auth(h.Pin.Unpin))

	// Presence
	mux.Handle("GET /api/presence", auth(h.Presence.List))

	// WebSocket — token query parameter ile authenticate edilir.
	// Tarayıcılar upgrade isteğinde custom header gönderemez:
	//   ws://server/ws?token=JWT_TOKEN
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
