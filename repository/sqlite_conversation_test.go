package repository

import (
	"context"
	"testing"
	"time"

	"github.com/akinalp/mqvi-sync/database/dbtest"
	"github.com/akinalp/mqvi-sync/models"
)

func TestConversationRepo_Visibility(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	a := seed.User("a", "alice")
	b := seed.User("b", "bob")
	mine := seed.Server("s1", a, b)
	other := seed.Server("s2", b)
	text := seed.TextChannel("c1", mine)
	seed.VoiceChannel("v1", mine)
	seed.TextChannel("c2", other)
	dm := seed.DM("d1", a, b)
	seed.DM("d2", b)

	repo := NewSQLiteConversationRepo(db.Conn)

	channels, err := repo.ListChannels(ctx, a)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 1 || channels[0] != models.ChannelConversation(text) {
		t.Errorf("expected only text channel of joined server, got %+v", channels)
	}

	dms, err := repo.ListDMs(ctx, a)
	if err != nil {
		t.Fatalf("list dms: %v", err)
	}
	if len(dms) != 1 || dms[0] != models.DMConversation(dm) {
		t.Errorf("unexpected dms %+v", dms)
	}

	tests := []struct {
		conv models.Conversation
		want bool
	}{
		{models.ChannelConversation(text), true},
		{models.ChannelConversation("c2"), false},
		{models.DMConversation(dm), true},
		{models.DMConversation("d2"), false},
	}
	for _, tt := range tests {
		got, err := repo.IsMember(ctx, a, tt.conv)
		if err != nil {
			t.Fatalf("is member: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsMember(%s) = %v, want %v", tt.conv.Key(), got, tt.want)
		}
	}

	members, err := repo.ListMemberIDs(ctx, models.DMConversation(dm))
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 dm members, got %v", members)
	}
}

func TestMentionRepo_Counts(t *testing.T) {
	db := dbtest.New(t)
	seed := dbtest.NewSeeder(t, db)
	ctx := context.Background()

	a := seed.User("a", "alice")
	b := seed.User("b", "bob")
	srv := seed.Server("s1", a, b)
	ch := seed.TextChannel("c1", srv)
	dm := seed.DM("d1", a, b)

	repo := NewSQLiteMentionRepo(db.Conn)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, "m1", models.ChannelConversation(ch), []string{a, a, b}, base); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, "m2", models.ChannelConversation(ch), []string{a}, base.Add(time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, "m3", models.DMConversation(dm), []string{a}, base); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := repo.CountUnread(ctx, a, models.ChannelConversation(ch), nil)
	if err != nil || n != 2 {
		t.Errorf("expected 2 channel mentions (dedupe per message), got %d (%v)", n, err)
	}
	n, err = repo.CountUnread(ctx, a, models.ChannelConversation(ch), &base)
	if err != nil || n != 1 {
		t.Errorf("expected 1 mention after threshold, got %d (%v)", n, err)
	}

	grouped, err := repo.CountUnreadGrouped(ctx, a, []models.Conversation{models.ChannelConversation(ch), models.DMConversation(dm)})
	if err != nil {
		t.Fatalf("grouped: %v", err)
	}
	if grouped["channel:"+ch] != 2 || grouped["dm:"+dm] != 1 {
		t.Errorf("unexpected grouped mentions %v", grouped)
	}

	if err := repo.DeleteByMessageID(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ = repo.CountUnread(ctx, b, models.ChannelConversation(ch), nil)
	if n != 0 {
		t.Errorf("expected mentions of deleted message to be gone, got %d", n)
	}
}
