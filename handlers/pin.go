package handlers

import (
	"net/http"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/services"
)

// PinHandler, mesaj sabitleme endpoint'lerini yöneten struct.
type PinHandler struct {
	messageService services.MessageService
}

// NewPinHandler, constructor.
func NewPinHandler(messageService services.MessageService) *PinHandler {
	return &PinHandler{messageService: messageService}
}

// Pin godoc
// PUT /api/messages/{id}/pin
func (h *PinHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

// Unpin godoc
// DELETE /api/messages/{id}/pin
func (h *PinHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *PinHandler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.messageService.SetPinned(r.Context(), r.PathValue("id"), user.ID, pinned); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]bool{"pinned": pinned})
}
