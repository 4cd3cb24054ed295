// Package handlers, HTTP endpoint'lerini barındırır.
//
// Handler'lar ince tutulur: request'i parse eder, service'i çağırır,
// sonucu pkg.JSON / pkg.Error ile yazar. İş mantığı service katmanındadır.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

// contextKey, context'te değer taşımak için kullanılan key tipi.
//
// Go'da context.Value() any tip kabul eder — string key kullanmak çakışmaya neden olabilir.
// Özel bir tip tanımlayarak namespace collision'ı önleriz.
type contextKey string

// UserContextKey, AuthMiddleware'in doğruladığı kullanıcıyı taşır (*models.User).
const UserContextKey contextKey = "user"

// ConversationContextKey, ConversationMiddleware'in üyeliğini doğruladığı
// konuşmayı taşır (models.Conversation).
const ConversationContextKey contextKey = "conversation"

// maxBodyBytes, JSON body'ler için üst sınır.
const maxBodyBytes = 64 << 10

// currentUser, context'teki kullanıcıyı döner; yoksa 401 yazar.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// currentConversation, middleware'in context'e koyduğu konuşmayı döner.
func currentConversation(w http.ResponseWriter, r *http.Request) (models.Conversation, bool) {
	conv, ok := r.Context().Value(ConversationContextKey).(models.Conversation)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "conversation context required")
		return models.Conversation{}, false
	}
	return conv, true
}

// ConversationFromQuery, ?channel_id= | ?dm_channel_id= parametrelerinden konuşmayı çözer.
// Tam olarak biri dolu olmalı.
func ConversationFromQuery(r *http.Request) (models.Conversation, error) {
	q := r.URL.Query()
	return models.ParseConversation(q.Get("channel_id"), q.Get("dm_channel_id"))
}

// decodeJSON, body'yi dst'ye çözer. Bozuk JSON ErrBadRequest olarak döner.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", pkg.ErrBadRequest)
	}
	return nil
}

// queryInt, opsiyonel bir tamsayı query parametresini okur. Geçersizse 0 döner
// ve service kendi varsayılanını uygular.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
