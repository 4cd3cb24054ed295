package handlers

import (
	"net/http"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/services"
)

// ReactionHandler, emoji reaction endpoint'lerini yöneten struct.
//
// Thin handler pattern: sadece HTTP request parse + response yazımı yapar.
// Emoji doğrulama ve reaction_update yayını MessageService'de.
type ReactionHandler struct {
	messageService services.MessageService
}

// NewReactionHandler, constructor.
func NewReactionHandler(messageService services.MessageService) *ReactionHandler {
	return &ReactionHandler{messageService: messageService}
}

// Add godoc
// PUT /api/messages/{id}/reactions/{emoji}
//
// PUT idempotenttir: aynı emoji ikinci kez eklenirse liste değişmez.
// Emoji path'te URL-encoded gelir; PathValue decode edilmiş halini döner.
func (h *ReactionHandler) Add(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	reactions, err := h.messageService.AddReaction(r.Context(), r.PathValue("id"), user.ID, r.PathValue("emoji"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, reactions)
}

// Remove godoc
// DELETE /api/messages/{id}/reactions/{emoji}
func (h *ReactionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	reactions, err := h.messageService.RemoveReaction(r.Context(), r.PathValue("id"), user.ID, r.PathValue("emoji"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, reactions)
}
