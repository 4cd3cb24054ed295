// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Go'da error'lar basit değerlerdir (string taşıyan struct'lar).
// errors.New() ile sabit error değişkenleri tanımlarız.
// Böylece error karşılaştırması string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
package pkg

import "errors"

// Domain-level error'lar.
// Handler ve WS gateway katmanı bu error'ları status/mesaja map'ler.
//
// ErrBadRequest, okuma durumu çekirdeğinin "InvalidArgument" sınıfıdır:
// çakışan/eksik konuşma ID'si, bulunamayan mesaj, konuşma uyuşmazlığı.
// Bu sınıfın mesajları kullanıcıya aynen gösterilebilir.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("rate limited")
	ErrInternal      = errors.New("internal error")
)

// genericMessage, beklenmeyen hatalarda client'a giden sabit mesaj.
// DB hata metinleri (tablo adı, SQL parçası vb.) dışarı sızmamalı.
const genericMessage = "internal error"

// IsPublic, hatanın mesajının client'a olduğu gibi iletilebilir olup olmadığını döner.
// Sadece kullanıcı girdisinden kaynaklanan domain hataları "public"tir.
func IsPublic(err error) bool {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrRateLimited):
		return true
	default:
		return false
	}
}

// PublicMessage, client'a gönderilecek hata mesajını döner.
// Public hatalarda wrap edilmiş tam mesaj, diğerlerinde "internal error".
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsPublic(err) {
		return err.Error()
	}
	return genericMessage
}
