// Package main — Repository katmanı başlatma.
//
// initRepositories, tüm repository implementasyonlarını oluşturur.
// Her repository aynı *sql.DB bağlantısını alır ve interface döner.
package main

import (
	"database/sql"

	"github.com/akinalp/mqvi-sync/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
//
// Neden struct? Ayrı ayrı repository değişkenleri yerine tek struct
// fonksiyon imzalarını temiz tutar; yeni repository eklendiğinde sadece
// struct + initRepositories güncellenir.
type Repositories struct {
	User         repository.UserRepository
	Message      repository.MessageRepository
	ReadState    repository.ReadStateRepository
	Conversation repository.ConversationRepository
	Mention      repository.MentionRepository
	// MessageWriter, mesaj + mention yazımlarını aynı transaction'da yapar.
	MessageWriter repository.MessageWriter
}

// initRepositories, veritabanı bağlantısından tüm repository'leri oluşturur.
//
// Go'nun sql.DB'si thread-safe connection pool'dur, paylaşılması güvenlidir.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		User:         repository.NewSQLiteUserRepo(conn),
		Message:      repository.NewSQLiteMessageRepo(conn),
		ReadState:    repository.NewSQLiteReadStateRepo(conn),
		Conversation: repository.NewSQLiteConversationRepo(conn),
		Mention:      repository.NewSQLiteMentionRepo(conn),

		MessageWriter: repository.NewSQLiteMessageWriter(conn),
	}
}
