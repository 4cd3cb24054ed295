package pkg

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// APIResponse, tüm API yanıtları için standart format.
// REST client'ı (client/api) aynı zarfı decode eder.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// statusTable, domain error ↔ HTTP status eşlemesi. Sıra önemlidir:
// bir hata birden fazla sentinel'i wrap ediyorsa ilk eşleşen kazanır.
var statusTable = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrAlreadyExists, http.StatusConflict},
	{ErrBadRequest, http.StatusBadRequest},
	{ErrRateLimited, http.StatusTooManyRequests},
}

// StatusOf, hatanın HTTP status code'unu döner. errors.Is kullanıldığı için
// wrap edilmiş hatalar da eşleşir; tanınmayan her şey 500'dür.
func StatusOf(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorForStatus, StatusOf'un tersi: client tarafı yanıt kodunu sentinel'e çevirir.
func ErrorForStatus(status int) error {
	for _, e := range statusTable {
		if e.status == status {
			return e.err
		}
	}
	return ErrInternal
}

// JSON, başarılı bir yanıt gönderir.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, APIResponse{Success: true, Data: data})
}

// Error, hata yanıtı gönderir. 500 sınıfı hatalar loglanır ve client'a
// sadece "internal error" gider.
func Error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Printf("[http] internal error: %v", err)
	}
	write(w, status, APIResponse{Error: PublicMessage(err)})
}

// ErrorWithMessage, özel mesajlı hata yanıtı gönderir.
func ErrorWithMessage(w http.ResponseWriter, status int, message string) {
	write(w, status, APIResponse{Error: message})
}

func write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Header yazıldı; burada yapılabilecek tek şey loglamak.
		log.Printf("[http] failed to encode response: %v", err)
	}
}
