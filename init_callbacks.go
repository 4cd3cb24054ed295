// Package main — WebSocket Hub callback wire-up.
//
// registerHubCallbacks, Hub'ın presence, oda ve read-state bağlantılarını ayarlar.
//
// Bu callback'ler neden burada (main package'da)?
// Hub ws paketinde yaşıyor, ama DB güncellemesi service/repo katmanında.
// Hub'ın service'lere bağımlı olmasını istemiyoruz (Dependency Inversion).
// main package wire-up noktasıdır — tüm katmanları birbirine bağlar.
//
// Presence callback'leri Hub'ın run goroutine'inden ayrı goroutine'de çalışır
// (addClient/removeClient içinde `go callback()` ile çağrılır).
package main

import (
	"context"
	"log"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/ws"
)

// registerHubCallbacks, tüm Hub callback'lerini register eder.
func registerHubCallbacks(
	hub *ws.Hub,
	repos *Repositories,
	svcs *Services,
	receipts *ws.ReadStateBroadcaster,
	limiters *RateLimiters,
) {
	// ─── Presence Callback'leri ───

	hub.OnUserFirstConnect(func(userID string) {
		user, err := repos.User.GetByID(context.Background(), userID)
		if err != nil {
			log.Printf("[presence] failed to get user %s: %v", userID, err)
			return
		}

		// DND tercihi sunucu restart'larında bile korunur.
		status := models.UserStatusOnline
		if user.Status == models.UserStatusDND {
			status = models.UserStatusDND
		} else if err := repos.User.UpdateStatus(context.Background(), userID, status); err != nil {
			log.Printf("[presence] failed to update status for user %s: %v", userID, err)
		}

		broadcastPresence(hub, userID, status)
		log.Printf("[presence] user %s is now %s", userID, status)
	})

	hub.OnUserFullyDisconnected(func(userID string) {
		if err := repos.User.UpdateStatus(context.Background(), userID, models.UserStatusOffline); err != nil {
			log.Printf("[presence] failed to set offline for user %s: %v", userID, err)
		}
		broadcastPresence(hub, userID, models.UserStatusOffline)
		log.Printf("[presence] user %s disconnected (DB set to offline)", userID)
	})

	hub.OnPresenceManualUpdate(func(userID string, status models.UserStatus) {
		if err := repos.User.UpdateStatus(context.Background(), userID, status); err != nil {
			log.Printf("[presence] failed to set %s for user %s: %v", status, userID, err)
			return
		}
		broadcastPresence(hub, userID, status)
		log.Printf("[presence] user %s is now %s (manual)", userID, status)
	})

	// ─── Oda Aboneliği ───

	hub.OnSubscribeRooms(roomResolver(repos.Conversation))

	// ─── Read State ───

	hub.UseReadState(svcs.ReadState, receipts, limiters.MarkRead)
}

func broadcastPresence(hub *ws.Hub, userID string, status models.UserStatus) {
	hub.BroadcastToAll(ws.Event{
		Op:   protocol.OpPresenceUpdate,
		Data: protocol.PresencePayload{UserID: userID, Status: status},
	})
}

// roomResolver, kullanıcının görebildiği tüm kanal ve DM'lerin oda adlarını döner.
// Oda adı konuşma key'idir ("channel:<id>" / "dm:<id>").
func roomResolver(conversations repository.ConversationRepository) ws.RoomResolver {
	return func(ctx context.Context, userID string) ([]string, error) {
		channels, err := conversations.ListChannels(ctx, userID)
		if err != nil {
			return nil, err
		}
		dms, err := conversations.ListDMs(ctx, userID)
		if err != nil {
			return nil, err
		}

		rooms := make([]string, 0, len(channels)+len(dms))
		for _, conv := range append(channels, dms...) {
			rooms = append(rooms, ws.ConversationRoom(conv))
		}
		return rooms, nil
	}
}
