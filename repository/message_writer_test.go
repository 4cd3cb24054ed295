package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akinalp/mqvi-sync/database/dbtest"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

func TestMessageWriter_RollsBackTogether(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	a := seed.User("u1", "ayse")
	b := seed.User("u2", "burak")
	dm := seed.DM("d1", a, b)
	conv := models.DMConversation(dm)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writer := NewSQLiteMessageWriter(db.Conn)
	boom := errors.New("boom")

	msg := &models.Message{ID: "m1", Conversation: conv, UserID: a, Content: "@burak selam", CreatedAt: at}
	err := writer.WithinTx(ctx, func(messages MessageRepository, mentions MentionRepository) error {
		if err := messages.Create(ctx, msg); err != nil {
			return err
		}
		if err := mentions.Create(ctx, msg.ID, conv, []string{b}, at); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx = %v, want boom", err)
	}

	if _, err := NewSQLiteMessageRepo(db.Conn).GetByID(ctx, "m1"); !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("message survived rollback: %v", err)
	}
	n, err := NewSQLiteMentionRepo(db.Conn).CountUnread(ctx, b, conv, nil)
	if err != nil {
		t.Fatalf("count mentions: %v", err)
	}
	if n != 0 {
		t.Errorf("mentions after rollback = %d, want 0", n)
	}

	// Aynı iş hatasız çalışınca ikisi de kalıcı olur.
	err = writer.WithinTx(ctx, func(messages MessageRepository, mentions MentionRepository) error {
		if err := messages.Create(ctx, msg); err != nil {
			return err
		}
		return mentions.Create(ctx, msg.ID, conv, []string{b}, at)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if n, _ := NewSQLiteMentionRepo(db.Conn).CountUnread(ctx, b, conv, nil); n != 1 {
		t.Errorf("mentions after commit = %d, want 1", n)
	}
}
