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

func TestMessageRepo_CountsExcludeReplies(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	u := seed.User("u1", "ayse")
	srv := seed.Server("s1", u)
	ch := seed.TextChannel("c1", srv)
	dm := seed.DM("d1", u)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed.Message(dbtest.Msg{ChannelID: ch, AuthorID: u, SentAt: base.Add(time.Duration(i) * time.Second)})
	}
	parent := seed.Message(dbtest.Msg{ID: "p", ChannelID: ch, AuthorID: u, SentAt: base.Add(10 * time.Second)})
	seed.Message(dbtest.Msg{ChannelID: ch, AuthorID: u, ParentID: parent, SentAt: base.Add(11 * time.Second)})
	seed.Message(dbtest.Msg{DMChannelID: dm, AuthorID: u, SentAt: base})

	repo := NewSQLiteMessageRepo(db.Conn)
	conv := models.ChannelConversation(ch)

	total, err := repo.CountUnread(ctx, conv, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 6 {
		t.Errorf("expected 6 top-level messages, got %d", total)
	}

	after := base.Add(2 * time.Second)
	n, err := repo.CountUnread(ctx, conv, &after)
	if err != nil {
		t.Fatalf("count after: %v", err)
	}
	// 3s, 4s ve parent (10s) — 2s'deki mesaj eşit olduğu için okunmuş sayılır
	if n != 3 {
		t.Errorf("expected 3 messages strictly after threshold, got %d", n)
	}

	grouped, err := repo.CountAllGrouped(ctx, []models.Conversation{conv, models.DMConversation(dm), models.DMConversation("empty")})
	if err != nil {
		t.Fatalf("grouped: %v", err)
	}
	if grouped[conv.Key()] != 6 || grouped["dm:"+dm] != 1 {
		t.Errorf("unexpected grouped counts %v", grouped)
	}
	if _, ok := grouped["dm:empty"]; ok {
		t.Error("conversations without messages must be absent")
	}
}

func TestMessageRepo_GetRefs(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	u := seed.User("u1", "ayse")
	dm := seed.DM("d1", u)
	at := time.Date(2026, 1, 1, 0, 0, 0, 42, time.UTC)
	seed.Message(dbtest.Msg{ID: "m1", DMChannelID: dm, AuthorID: u, SentAt: at})
	seed.Message(dbtest.Msg{ID: "m2", DMChannelID: dm, AuthorID: u, SentAt: at})
	seed.DeleteMessage("m2")

	repo := NewSQLiteMessageRepo(db.Conn)

	refs, err := repo.GetRefs(ctx, []string{"m1", "m2", "m1", "missing"})
	if err != nil {
		t.Fatalf("get refs: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected only existing messages, got %v", refs)
	}
	if ref := refs["m1"]; !ref.SentAt.Equal(at) || ref.Conversation != models.DMConversation(dm) {
		t.Errorf("unexpected ref %+v", ref)
	}

	if _, err := repo.GetRef(ctx, "m2"); !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("deleted message should be ErrNotFound, got %v", err)
	}
}

func TestMessageRepo_ListPagination(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	u := seed.User("u1", "ayse")
	srv := seed.Server("s1", u)
	ch := seed.TextChannel("c1", srv)

	// Aynı nanosaniyede iki mesaj: sayfa sınırında kaybolmamalı
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed.Message(dbtest.Msg{ID: "a", ChannelID: ch, AuthorID: u, SentAt: at})
	seed.Message(dbtest.Msg{ID: "b", ChannelID: ch, AuthorID: u, SentAt: at})
	seed.Message(dbtest.Msg{ID: "c", ChannelID: ch, AuthorID: u, SentAt: at.Add(time.Second)})

	repo := NewSQLiteMessageRepo(db.Conn)
	conv := models.ChannelConversation(ch)

	first, err := repo.List(ctx, conv, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 2 || first[0].ID != "c" || first[1].ID != "b" {
		t.Fatalf("unexpected first page %v", ids(first))
	}

	second, err := repo.List(ctx, conv, first[1].ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(second) != 1 || second[0].ID != "a" {
		t.Fatalf("unexpected second page %v", ids(second))
	}
	if second[0].Author == nil || second[0].Author.Username != "ayse" {
		t.Errorf("expected author join, got %+v", second[0].Author)
	}
}

func TestMessageRepo_Reactions(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	a := seed.User("a", "alice")
	b := seed.User("b", "bob")
	dm := seed.DM("d1", a, b)
	m := seed.Message(dbtest.Msg{DMChannelID: dm, AuthorID: a})

	repo := NewSQLiteMessageRepo(db.Conn)
	now := time.Now()
	for _, r := range []struct{ user, emoji string }{{a, "👍"}, {b, "👍"}, {b, "🎉"}, {b, "👍"}} {
		if err := repo.AddReaction(ctx, m, r.user, r.emoji, now); err != nil {
			t.Fatalf("add reaction: %v", err)
		}
	}

	groups, err := repo.Reactions(ctx, m)
	if err != nil {
		t.Fatalf("reactions: %v", err)
	}
	if len(groups) != 2 || groups[0].Emoji != "👍" || groups[0].Count != 2 {
		t.Errorf("unexpected groups %+v", groups)
	}

	if err := repo.RemoveReaction(ctx, m, b, "🎉"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	msg, err := repo.GetByID(ctx, m)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msg.Reactions) != 1 {
		t.Errorf("expected one reaction group after removal, got %+v", msg.Reactions)
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
