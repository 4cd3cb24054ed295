package handlers

import (
	"net/http"
	"sort"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/protocol"
	"github.com/akinalp/mqvi-sync/repository"
)

// OnlineLister, bağlı kullanıcıları listeleyen kaynak. ws.Hub bunu karşılar.
type OnlineLister interface {
	GetOnlineUserIDs() []string
}

// PresenceHandler, çevrimiçi kullanıcı listesini döner.
// Client yeniden bağlandığında presence cache'ini bu endpoint ile tazeler.
type PresenceHandler struct {
	online OnlineLister
	users  repository.UserRepository
}

// NewPresenceHandler, constructor.
func NewPresenceHandler(online OnlineLister, users repository.UserRepository) *PresenceHandler {
	return &PresenceHandler{online: online, users: users}
}

// List godoc
// GET /api/presence
// Bu node'a bağlı kullanıcıları kayıtlı durumlarıyla (online/idle/dnd) döner.
func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	ids := h.online.GetOnlineUserIDs()
	sort.Strings(ids)

	presence := make([]protocol.PresencePayload, 0, len(ids))
	for _, id := range ids {
		user, err := h.users.GetByID(r.Context(), id)
		if err != nil {
			pkg.Error(w, err)
			return
		}
		presence = append(presence, protocol.PresencePayload{UserID: user.ID, Status: user.Status})
	}

	pkg.JSON(w, http.StatusOK, presence)
}
