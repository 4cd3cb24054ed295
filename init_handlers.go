// Package main — Handler katmanı başlatma.
//
// initHandlers, tüm HTTP handler'larını oluşturur.
// Handler'lar "thin" dir — sadece HTTP parse + service call + response write.
package main

import (
	"github.com/akinalp/mqvi-sync/config"
	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	ReadState *handlers.ReadStateHandler
	Message   *handlers.MessageHandler
	Reaction  *handlers.ReactionHandler
	Pin       *handlers.PinHandler
	Presence  *handlers.PresenceHandler
	WS        *ws.Handler
}

// initHandlers, handler'ları oluşturur.
// receipts, hem REST mark hem WS mark_read tarafından kullanılan ortak yayıncıdır.
func initHandlers(svcs *Services, repos *Repositories, receipts *ws.ReadStateBroadcaster, hub *ws.Hub, cfg *config.Config) *Handlers {
	return &Handlers{
		ReadState: handlers.NewReadStateHandler(svcs.ReadState, receipts),
		Message:   handlers.NewMessageHandler(svcs.Message),
		Reaction:  handlers.NewReactionHandler(svcs.Message),
		Pin:       handlers.NewPinHandler(svcs.Message),
		Presence:  handlers.NewPresenceHandler(hub, repos.User),
		WS:        ws.NewHandler(hub, svcs.Token, cfg.Server.CORSOrigins),
	}
}
