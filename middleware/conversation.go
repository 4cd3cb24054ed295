// Package middleware — ConversationMiddleware: konuşma üyelik kontrolü.
//
// Query'den ?channel_id= | ?dm_channel_id= parametresini alır, kullanıcının
// o konuşmaya erişimi olup olmadığını doğrular ve konuşmayı context'e ekler.
//
// Bu middleware AuthMiddleware'den SONRA çalışır — context'te user bilgisi
// zaten mevcuttur.
//
// Akış: HTTP request → AuthMiddleware → ConversationMiddleware → Handler
package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/repository"
)

// ConversationMiddleware, konuşma üyelik kontrolü middleware'ı.
type ConversationMiddleware struct {
	conversationRepo repository.ConversationRepository
}

// NewConversationMiddleware, constructor.
func NewConversationMiddleware(conversationRepo repository.ConversationRepository) *ConversationMiddleware {
	return &ConversationMiddleware{conversationRepo: conversationRepo}
}

// Require, konuşma üyeliği zorunlu kılan middleware.
//
// Konuşma parametresi geçersizse 400, üye değilse 403 döner.
// Başarılıysa konuşmayı handlers.ConversationContextKey ile context'e ekler.
func (m *ConversationMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(handlers.UserContextKey).(*models.User)
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
			return
		}

		conv, err := handlers.ConversationFromQuery(r)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		isMember, err := m.conversationRepo.IsMember(r.Context(), user.ID, conv)
		if err != nil {
			log.Printf("[http] membership check failed for %s: %v", conv.Key(), err)
			pkg.ErrorWithMessage(w, http.StatusInternalServerError, "failed to check conversation membership")
			return
		}
		if !isMember {
			pkg.ErrorWithMessage(w, http.StatusForbidden, "you are not a member of this conversation")
			return
		}

		ctx := context.WithValue(r.Context(), handlers.ConversationContextKey, conv)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
