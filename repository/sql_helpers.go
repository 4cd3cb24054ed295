package repository

import (
	"strings"

	"github.com/akinalp/mqvi-sync/models"
)

// maxInArgs, tek bir IN (...) listesine konulacak en fazla parametre.
// SQLite'ın parametre limiti sürüme göre 999 veya 32766'dır; düşük olanın altında kalırız.
const maxInArgs = 500

// placeholders, n adet "?" üretir: "?, ?, ?".
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// chunk, ids'i en fazla size elemanlı dilimlere böler.
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// splitConversations, konuşmaları kanal ve DM ID listelerine ayırır.
func splitConversations(convs []models.Conversation) (channelIDs, dmIDs []string) {
	for _, c := range convs {
		if c.IsDM() {
			dmIDs = append(dmIDs, c.DMChannelID)
		} else if c.ChannelID != "" {
			channelIDs = append(channelIDs, c.ChannelID)
		}
	}
	return channelIDs, dmIDs
}

// toArgs, string dilimini ...any parametresine çevirir.
func toArgs(prefix []any, ids []string) []any {
	args := make([]any, 0, len(prefix)+len(ids))
	args = append(args, prefix...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
