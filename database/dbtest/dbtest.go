// Package dbtest, repository ve service testleri için gerçek SQLite veritabanı
// ve seed helper'ları sağlar.
//
// Mock yerine gerçek modernc SQLite kullanılır: unread sorguları SQL'in
// kendisidir, mock'lanırsa test edilecek bir şey kalmaz.
package dbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/akinalp/mqvi-sync/database"
)

// New, test başına boş bir veritabanı açar; test bitince kapatılır.
// Dosya t.TempDir() altındadır — paralel testler birbirini görmez.
func New(t testing.TB) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(path, database.Migrations())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Seeder, test verisini kısa çağrılarla oluşturur. Hata olursa testi durdurur.
type Seeder struct {
	t    testing.TB
	conn *sql.DB
	seq  int
}

// NewSeeder, verilen DB için bir Seeder döner.
func NewSeeder(t testing.TB, db *database.DB) *Seeder {
	return &Seeder{t: t, conn: db.Conn}
}

func (s *Seeder) exec(query string, args ...any) {
	s.t.Helper()
	if _, err := s.conn.Exec(query, args...); err != nil {
		s.t.Fatalf("seed failed: %v\nquery: %s", err, query)
	}
}

func (s *Seeder) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

// User, kullanıcı oluşturur. ID boşsa üretilir.
func (s *Seeder) User(id, username string) string {
	s.t.Helper()
	if id == "" {
		id = s.nextID("u")
	}
	s.exec(`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		id, username, time.Now().UnixNano())
	return id
}

// Server, sunucu oluşturur ve verilen kullanıcıları üye yapar.
func (s *Seeder) Server(id string, memberIDs ...string) string {
	s.t.Helper()
	if id == "" {
		id = s.nextID("s")
	}
	now := time.Now().UnixNano()
	s.exec(`INSERT INTO servers (id, name, created_at) VALUES (?, ?, ?)`, id, id, now)
	for _, uid := range memberIDs {
		s.exec(`INSERT INTO server_members (server_id, user_id, joined_at) VALUES (?, ?, ?)`, id, uid, now)
	}
	return id
}

// TextChannel, sunucuda text kanalı oluşturur.
func (s *Seeder) TextChannel(id, serverID string) string {
	s.t.Helper()
	return s.channel(id, serverID, "text")
}

// VoiceChannel, sunucuda voice kanalı oluşturur (unread sayımına dahil edilmez).
func (s *Seeder) VoiceChannel(id, serverID string) string {
	s.t.Helper()
	return s.channel(id, serverID, "voice")
}

func (s *Seeder) channel(id, serverID, typ string) string {
	s.t.Helper()
	if id == "" {
		id = s.nextID("c")
	}
	s.exec(`INSERT INTO channels (id, server_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, serverID, id, typ, time.Now().UnixNano())
	return id
}

// DM, katılımcılarla bir DM kanalı oluşturur.
func (s *Seeder) DM(id string, participantIDs ...string) string {
	s.t.Helper()
	if id == "" {
		id = s.nextID("d")
	}
	s.exec(`INSERT INTO dm_channels (id, created_at) VALUES (?, ?)`, id, time.Now().UnixNano())
	for _, uid := range participantIDs {
		s.exec(`INSERT INTO dm_participants (dm_channel_id, user_id) VALUES (?, ?)`, id, uid)
	}
	return id
}

// Msg, test mesajının tanımı. ChannelID veya DMChannelID'den biri dolu olmalı.
type Msg struct {
	ID          string
	ChannelID   string
	DMChannelID string
	AuthorID    string
	ParentID    string
	SentAt      time.Time
}

// Message, mesaj ekler ve ID'sini döner.
func (s *Seeder) Message(m Msg) string {
	s.t.Helper()
	if m.ID == "" {
		m.ID = s.nextID("m")
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	s.exec(`INSERT INTO messages (id, channel_id, dm_channel_id, user_id, content, thread_parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, nullable(m.ChannelID), nullable(m.DMChannelID), m.AuthorID, "msg "+m.ID,
		nullable(m.ParentID), m.SentAt.UnixNano())
	return m.ID
}

// DeleteMessage, mesajı kalıcı olarak siler (watermark'ı sarkık bırakmak için).
func (s *Seeder) DeleteMessage(id string) {
	s.t.Helper()
	s.exec(`DELETE FROM messages WHERE id = ?`, id)
}

// Mention, okunmamış bir mention bildirimi ekler.
func (s *Seeder) Mention(userID, messageID, channelID, dmChannelID string, at time.Time) {
	s.t.Helper()
	s.exec(`INSERT INTO notifications (id, user_id, type, message_id, channel_id, dm_channel_id, is_read, created_at)
		VALUES (?, ?, 'mention', ?, ?, ?, 0, ?)`,
		s.nextID("n"), userID, messageID, nullable(channelID), nullable(dmChannelID), at.UnixNano())
}

// Receipt, watermark satırını doğrudan yazar (service'i atlayarak).
func (s *Seeder) Receipt(userID, channelID, dmChannelID, messageID string, at time.Time) {
	s.t.Helper()
	if channelID != "" {
		s.exec(`INSERT INTO channel_reads (user_id, channel_id, last_read_message_id, last_read_at) VALUES (?, ?, ?, ?)`,
			userID, channelID, messageID, at.UnixNano())
		return
	}
	s.exec(`INSERT INTO dm_reads (user_id, dm_channel_id, last_read_message_id, last_read_at) VALUES (?, ?, ?, ?)`,
		userID, dmChannelID, messageID, at.UnixNano())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
