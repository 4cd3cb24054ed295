package repository

import (
	"context"
	"database/sql"

	"github.com/akinalp/mqvi-sync/database"
)

// MessageWriter, bir mesaj satırı ile onun mention bildirimlerini tek
// transaction'da yazar. Mesaj silinip bildirimi kalırsa mention sayacı
// var olmayan bir mesajı sayar; bu yüzden ikisi birlikte commit edilir.
type MessageWriter interface {
	// WithinTx, fn'e transaction'a bağlı repository'ler verir.
	// fn hata dönerse hiçbir yazım kalıcı olmaz.
	WithinTx(ctx context.Context, fn func(messages MessageRepository, mentions MentionRepository) error) error
}

type sqliteMessageWriter struct {
	db *sql.DB
}

// NewSQLiteMessageWriter, constructor.
func NewSQLiteMessageWriter(db *sql.DB) MessageWriter {
	return &sqliteMessageWriter{db: db}
}

func (w *sqliteMessageWriter) WithinTx(ctx context.Context, fn func(MessageRepository, MentionRepository) error) error {
	return database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		return fn(NewSQLiteMessageRepo(tx), NewSQLiteMentionRepo(tx))
	})
}
