package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/services"
)

// ReceiptBroadcaster, REST ile işaretlenen receipt'i gateway ile aynı şekilde yayınlar.
// main.go'da ws.ReadStateBroadcaster bunu karşılar.
type ReceiptBroadcaster interface {
	Broadcast(ctx context.Context, receipt *models.ReadReceipt)
}

// ReadStateHandler, okunmamış mesaj takibi endpoint'lerini yöneten struct.
type ReadStateHandler struct {
	readStateService services.ReadStateService
	broadcaster      ReceiptBroadcaster
}

// NewReadStateHandler, constructor.
func NewReadStateHandler(readStateService services.ReadStateService, broadcaster ReceiptBroadcaster) *ReadStateHandler {
	return &ReadStateHandler{readStateService: readStateService, broadcaster: broadcaster}
}

// GetUnread godoc
// GET /api/read-state/unread?channel_id=|dm_channel_id=
// Tek bir konuşmanın okunmamış mesaj ve mention sayısını döner.
func (h *ReadStateHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	conv, ok := currentConversation(w, r)
	if !ok {
		return
	}

	count, err := h.readStateService.GetUnreadCount(r.Context(), user.ID, conv)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, count)
}

// GetUnreads godoc
// GET /api/read-state/unreads
// Kullanıcının görebildiği tüm konuşmaların sayaçlarını tek seferde döner.
// Client bunu bağlantı kurulunca ve yeniden bağlanınca çeker.
func (h *ReadStateHandler) GetUnreads(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	unreads, err := h.readStateService.GetUnreadCounts(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, unreads)
}

// lastReadResponse, last-read endpoint'inin yanıtı. Receipt yoksa alan null'dır.
type lastReadResponse struct {
	LastReadMessageID *string `json:"last_read_message_id"`
}

// GetLastRead godoc
// GET /api/read-state/last-read?channel_id=|dm_channel_id=
// Client, konuşmayı açtığında "yeni mesajlar" ayracını buraya koyar.
func (h *ReadStateHandler) GetLastRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	conv, ok := currentConversation(w, r)
	if !ok {
		return
	}

	id, err := h.readStateService.GetLastReadMessageID(r.Context(), user.ID, conv)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, lastReadResponse{LastReadMessageID: id})
}

// GetReaders godoc
// GET /api/messages/{id}/readers?channel_id=|dm_channel_id=&include_self=true
// Mesajı görmüş kullanıcıları döner ("seen by"). Varsayılan olarak çağıran hariç tutulur.
func (h *ReadStateHandler) GetReaders(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	conv, ok := currentConversation(w, r)
	if !ok {
		return
	}

	exclude := user.ID
	if raw := r.URL.Query().Get("include_self"); raw != "" {
		includeSelf, err := strconv.ParseBool(raw)
		if err != nil {
			pkg.Error(w, fmt.Errorf("%w: include_self must be a boolean", pkg.ErrBadRequest))
			return
		}
		if includeSelf {
			exclude = ""
		}
	}

	readers, err := h.readStateService.GetMessageReaders(r.Context(), r.PathValue("id"), conv, exclude)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, readers)
}

// Mark godoc
// POST /api/read-state/mark
// Body: { "last_read_message_id": "...", "channel_id" | "dm_channel_id": "..." }
//
// WS mark_read ile aynı iş: persist edilen receipt kullanıcının diğer
// oturumlarına (ve DM ise karşı tarafa) yayınlanır.
func (h *ReadStateHandler) Mark(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.MarkReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	receipt, advanced, err := h.readStateService.MarkAsRead(r.Context(), user.ID, req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	// Eski mesajı işaretleme no-op'tur; mevcut receipt döner ama yayınlanmaz.
	if advanced {
		h.broadcaster.Broadcast(r.Context(), receipt)
	}

	pkg.JSON(w, http.StatusOK, receipt)
}
