package cache

import (
	"github.com/akinalp/mqvi-sync/models"
)

// MessageSnapshot, mesaj tutan üç cache şekli.
// Patch fonksiyonları hangi şekil verilirse aynı şekli döner.
type MessageSnapshot interface {
	*Infinite[models.Message] | *Flat[models.Message] | *Thread[models.Message]
}

// MessagePatch, tek bir mesajın alanlarını değiştiren saf fonksiyon.
// With* constructor'ları server event'lerinden üretir; aynı patch birden
// fazla snapshot'a (liste + thread) uygulanabilir.
type MessagePatch func(models.Message) models.Message

// PatchMessage, snapshot'ın şekline göre doğru Patch* fonksiyonunu çağırır.
func PatchMessage[S MessageSnapshot](s S, messageID string, fn MessagePatch) S {
	switch v := any(s).(type) {
	case *Infinite[models.Message]:
		return any(PatchInfinite[models.Message](v, messageID, fn)).(S)
	case *Flat[models.Message]:
		return any(PatchFlat[models.Message](v, messageID, fn)).(S)
	case *Thread[models.Message]:
		return any(PatchThread[models.Message](v, messageID, fn)).(S)
	}
	return s
}

// WithReplyCount, thread parent'ının yanıt sayısını ayarlar.
func WithReplyCount(count int) MessagePatch {
	return func(m models.Message) models.Message {
		m.ReplyCount = count
		return m
	}
}

// WithReactions, reaction listesini server'ın gönderdiği güncel listeyle
// değiştirir. Liste kopyalanır; payload ile paylaşılmaz.
func WithReactions(reactions []models.ReactionGroup) MessagePatch {
	groups := make([]models.ReactionGroup, len(reactions))
	copy(groups, reactions)
	return func(m models.Message) models.Message {
		m.Reactions = groups
		return m
	}
}

// WithPin, sabitlenme durumunu ayarlar.
func WithPin(pinned bool) MessagePatch {
	return func(m models.Message) models.Message {
		m.IsPinned = pinned
		return m
	}
}

// WithEdit, message_update payload'ını uygular. Sadece düzenlenebilir alanlar
// değişir; reply sayısı ve reactions kendi event'leriyle güncellenir.
func WithEdit(updated models.Message) MessagePatch {
	return func(m models.Message) models.Message {
		m.Content = updated.Content
		m.Mentions = updated.Mentions
		m.EditedAt = updated.EditedAt
		return m
	}
}

// ApplyThreadCount, thread parent'ının yanıt sayısını günceller.
func ApplyThreadCount[S MessageSnapshot](s S, parentID string, count int) S {
	return PatchMessage(s, parentID, WithReplyCount(count))
}

// ApplyReactions, mesajın reaction listesini değiştirir.
func ApplyReactions[S MessageSnapshot](s S, messageID string, reactions []models.ReactionGroup) S {
	return PatchMessage(s, messageID, WithReactions(reactions))
}

// ApplyPin, mesajın sabitlenme durumunu değiştirir.
func ApplyPin[S MessageSnapshot](s S, messageID string, pinned bool) S {
	return PatchMessage(s, messageID, WithPin(pinned))
}

// ApplyEdit, düzenlenmiş mesajı snapshot'a uygular.
func ApplyEdit[S MessageSnapshot](s S, updated models.Message) S {
	return PatchMessage(s, updated.ID, WithEdit(updated))
}
