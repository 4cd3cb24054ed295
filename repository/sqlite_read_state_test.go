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

func TestReadStateRepo_UpsertAndGet(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	u := seed.User("u1", "ayse")
	srv := seed.Server("s1", u)
	ch := seed.TextChannel("c1", srv)
	dm := seed.DM("d1", u)

	repo := NewSQLiteReadStateRepo(db.Conn)

	if _, err := repo.Get(ctx, u, models.ChannelConversation(ch)); !errors.Is(err, pkg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first mark, got %v", err)
	}

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 1, time.UTC)
	t2 := t1.Add(time.Minute)

	for _, rc := range []models.ReadReceipt{
		{UserID: u, Conversation: models.ChannelConversation(ch), LastReadMessageID: "m1", LastReadAt: t1},
		{UserID: u, Conversation: models.ChannelConversation(ch), LastReadMessageID: "m2", LastReadAt: t2},
		{UserID: u, Conversation: models.DMConversation(dm), LastReadMessageID: "m9", LastReadAt: t1},
	} {
		rc := rc
		if err := repo.Upsert(ctx, &rc); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := repo.Get(ctx, u, models.ChannelConversation(ch))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastReadMessageID != "m2" || !got.LastReadAt.Equal(t2) {
		t.Errorf("expected updated row in place, got %+v", got)
	}

	all, err := repo.ListByUser(ctx, u)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected one row per conversation (2), got %d", len(all))
	}
	for _, rc := range all {
		if !rc.Conversation.Valid() {
			t.Errorf("invalid conversation in %+v", rc)
		}
	}
}

func TestReadStateRepo_ListReaders(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	a := seed.User("a", "alice")
	b := seed.User("b", "bob")
	c := seed.User("c", "carol")
	dm := seed.DM("d1", a, b, c)

	sentAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	seed.Receipt(a, "", dm, "m1", sentAt)                       // eşit → okumuş
	seed.Receipt(b, "", dm, "m0", sentAt.Add(-time.Nanosecond)) // önce → okumamış
	seed.Receipt(c, "", dm, "m2", sentAt.Add(time.Hour))        // sonra → okumuş

	repo := NewSQLiteReadStateRepo(db.Conn)

	readers, err := repo.ListReaders(ctx, models.DMConversation(dm), sentAt, "")
	if err != nil {
		t.Fatalf("list readers: %v", err)
	}
	if len(readers) != 2 || readers[0].UserID != a || readers[1].UserID != c {
		t.Fatalf("expected [a c], got %+v", readers)
	}
	if readers[0].Username != "alice" {
		t.Errorf("expected profile join, got %+v", readers[0])
	}

	readers, err = repo.ListReaders(ctx, models.DMConversation(dm), sentAt, a)
	if err != nil {
		t.Fatalf("list readers: %v", err)
	}
	if len(readers) != 1 || readers[0].UserID != c {
		t.Errorf("expected excluded user to be dropped, got %+v", readers)
	}
}

func TestReadStateRepo_ListReadersSkipsNonMembers(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	a := seed.User("a", "alice")
	b := seed.User("b", "bob")
	outsider := seed.User("m", "mallory")
	dm := seed.DM("d1", a, b)
	srv := seed.Server("s1", a)
	ch := seed.TextChannel("c1", srv)

	sentAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	seed.Receipt(b, "", dm, "m1", sentAt)
	seed.Receipt(outsider, "", dm, "m1", sentAt)
	seed.Receipt(a, ch, "", "c-m1", sentAt)
	seed.Receipt(outsider, ch, "", "c-m1", sentAt)

	repo := NewSQLiteReadStateRepo(db.Conn)
	tests := []struct {
		name string
		conv models.Conversation
		want string
	}{
		{"dm", models.DMConversation(dm), b},
		{"channel", models.ChannelConversation(ch), a},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readers, err := repo.ListReaders(ctx, tt.conv, sentAt, "")
			if err != nil {
				t.Fatalf("list readers: %v", err)
			}
			if len(readers) != 1 || readers[0].UserID != tt.want {
				t.Errorf("expected only %s, got %+v", tt.want, readers)
			}
		})
	}
}
