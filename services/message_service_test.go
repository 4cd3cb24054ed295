package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/mqvi-sync/database/dbtest"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/protocol"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/ws"
)

type roomEvent struct {
	room  string
	event ws.Event
}

// recordingPublisher, ws.EventPublisher'ı karşılar ve yayınları kaydeder.
type recordingPublisher struct {
	mu     sync.Mutex
	events []roomEvent
}

func (p *recordingPublisher) BroadcastToRoom(room string, event ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, roomEvent{room: room, event: event})
}

func (p *recordingPublisher) BroadcastToUser(userID string, event ws.Event) {
	p.BroadcastToRoom(ws.UserRoom(userID), event)
}

func (p *recordingPublisher) BroadcastToAll(event ws.Event) {
	p.BroadcastToRoom("broadcast", event)
}

func (p *recordingPublisher) GetOnlineUserIDs() []string { return nil }

func (p *recordingPublisher) ops() []protocol.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]protocol.Op, len(p.events))
	for i, e := range p.events {
		ops[i] = e.event.Op
	}
	return ops
}

func (p *recordingPublisher) last() roomEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type messageFixture struct {
	seed     *dbtest.Seeder
	svc      *messageService
	mentions repository.MentionRepository
	hub      *recordingPublisher

	alice, bob, carol string
	channel           string
	dm                string
}

// newMessageFixture: alice ve bob aynı sunucuda, carol dışarıda.
// alice ile carol arasında bir DM vardır.
func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	db := dbtest.New(t)
	f := &messageFixture{
		seed:     dbtest.NewSeeder(t, db),
		mentions: repository.NewSQLiteMentionRepo(db.Conn),
		hub:      &recordingPublisher{},
	}
	f.svc = NewMessageService(
		repository.NewSQLiteMessageRepo(db.Conn),
		repository.NewSQLiteConversationRepo(db.Conn),
		repository.NewSQLiteUserRepo(db.Conn),
		repository.NewSQLiteMessageWriter(db.Conn),
		f.hub,
	).(*messageService)

	clock := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	f.alice = f.seed.User("alice", "alice")
	f.bob = f.seed.User("bob", "bob")
	f.carol = f.seed.User("carol", "carol")
	srv := f.seed.Server("s", f.alice, f.bob)
	f.channel = f.seed.TextChannel("c", srv)
	f.dm = f.seed.DM("d", f.alice, f.carol)
	return f
}

func (f *messageFixture) post(t *testing.T, userID, content string, parentID *string) *models.Message {
	t.Helper()
	msg, err := f.svc.Create(context.Background(), userID, &models.CreateMessageRequest{
		ChannelID:      f.channel,
		Content:        content,
		ThreadParentID: parentID,
	})
	if err != nil {
		t.Fatalf("Create(%q): %v", content, err)
	}
	return msg
}

func TestMessageService_CreateBroadcastsToConversationRoom(t *testing.T) {
	f := newMessageFixture(t)

	msg := f.post(t, f.alice, "  hello  ", nil)

	if msg.Content != "hello" {
		t.Errorf("expected trimmed content, got %q", msg.Content)
	}
	if msg.Author == nil || msg.Author.Username != "alice" {
		t.Errorf("expected author to be loaded, got %+v", msg.Author)
	}

	got := f.hub.last()
	if got.room != "channel:c" || got.event.Op != protocol.OpMessageCreate {
		t.Fatalf("expected message_create to channel:c, got %s → %s", got.event.Op, got.room)
	}
}

func TestMessageService_CreateValidation(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	parent := f.post(t, f.alice, "parent", nil)
	reply := f.post(t, f.alice, "reply", &parent.ID)
	dmMsg, err := f.svc.Create(ctx, f.alice, &models.CreateMessageRequest{DMChannelID: f.dm, Content: "hi"})
	if err != nil {
		t.Fatalf("dm create: %v", err)
	}
	missing := "nope"

	tests := []struct {
		name   string
		userID string
		req    models.CreateMessageRequest
		want   error
	}{
		{"empty content", f.alice, models.CreateMessageRequest{ChannelID: f.channel, Content: "   "}, pkg.ErrBadRequest},
		{"no conversation", f.alice, models.CreateMessageRequest{Content: "x"}, pkg.ErrBadRequest},
		{"both conversations", f.alice, models.CreateMessageRequest{ChannelID: f.channel, DMChannelID: f.dm, Content: "x"}, pkg.ErrBadRequest},
		{"not a member", f.carol, models.CreateMessageRequest{ChannelID: f.channel, Content: "x"}, pkg.ErrForbidden},
		{"missing parent", f.alice, models.CreateMessageRequest{ChannelID: f.channel, Content: "x", ThreadParentID: &missing}, pkg.ErrBadRequest},
		{"reply to reply", f.alice, models.CreateMessageRequest{ChannelID: f.channel, Content: "x", ThreadParentID: &reply.ID}, pkg.ErrBadRequest},
		{"parent in other conversation", f.alice, models.CreateMessageRequest{ChannelID: f.channel, Content: "x", ThreadParentID: &dmMsg.ID}, pkg.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.userID, &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMessageService_Mentions(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	conv := models.ChannelConversation(f.channel)

	// carol kanalın üyesi değil, alice yazarın kendisi, ghost yok
	msg := f.post(t, f.alice, "@Bob @bob @carol @alice @ghost bak", nil)

	if len(msg.Mentions) != 1 || msg.Mentions[0] != f.bob {
		t.Fatalf("expected only bob to be mentioned, got %v", msg.Mentions)
	}
	for user, want := range map[string]int{f.bob: 1, f.carol: 0, f.alice: 0} {
		n, err := f.mentions.CountUnread(ctx, user, conv, nil)
		if err != nil {
			t.Fatalf("CountUnread(%s): %v", user, err)
		}
		if n != want {
			t.Errorf("%s: expected %d mentions, got %d", user, want, n)
		}
	}

	// Düzenleme mention'ları baştan yazar
	if _, err := f.svc.Update(ctx, msg.ID, f.alice, &models.UpdateMessageRequest{Content: "kimseyi anmıyorum"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n, _ := f.mentions.CountUnread(ctx, f.bob, conv, nil); n != 0 {
		t.Errorf("expected mentions to be cleared after edit, got %d", n)
	}
}

func TestMessageService_Threads(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	parent := f.post(t, f.alice, "parent", nil)
	f.hub.reset()

	reply := f.post(t, f.bob, "reply", &parent.ID)

	ops := f.hub.ops()
	if len(ops) != 2 || ops[0] != protocol.OpMessageCreate || ops[1] != protocol.OpThreadUpdate {
		t.Fatalf("expected message_create then thread_update, got %v", ops)
	}
	stats, ok := f.hub.last().event.Data.(protocol.ThreadUpdatePayload)
	if !ok || stats.ParentID != parent.ID || stats.ReplyCount != 1 || stats.LastReplyAt == nil {
		t.Errorf("unexpected thread stats %+v", f.hub.last().event.Data)
	}

	// Yanıtlar üst seviye listede görünmez
	page, err := f.svc.List(ctx, f.alice, models.ChannelConversation(f.channel), "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != parent.ID {
		t.Errorf("expected only the parent at top level, got %d messages", len(page.Messages))
	}

	replies, err := f.svc.ListReplies(ctx, f.alice, parent.ID, "", 10)
	if err != nil {
		t.Fatalf("ListReplies: %v", err)
	}
	if len(replies.Messages) != 1 || replies.Messages[0].ID != reply.ID {
		t.Errorf("unexpected replies %+v", replies.Messages)
	}

	f.hub.reset()
	if err := f.svc.Delete(ctx, reply.ID, f.bob); err != nil {
		t.Fatalf("Delete reply: %v", err)
	}
	stats, ok = f.hub.last().event.Data.(protocol.ThreadUpdatePayload)
	if !ok || stats.ReplyCount != 0 {
		t.Errorf("expected thread_update with 0 replies after delete, got %+v", f.hub.last().event.Data)
	}
}

func TestMessageService_ListPagination(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	conv := models.ChannelConversation(f.channel)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.post(t, f.alice, fmt.Sprintf("m%d", i), nil).ID)
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
		page, err := f.svc.List(ctx, f.bob, conv, cursor, 2)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, m := range page.Messages {
			seen = append(seen, m.ID)
		}
		if !page.HasMore {
			if page.NextCursor != "" {
				t.Errorf("expected empty cursor on last page, got %q", page.NextCursor)
			}
			break
		}
		cursor = page.NextCursor
	}

	// En yeniden eskiye, tekrarsız
	if len(seen) != len(ids) {
		t.Fatalf("expected %d messages, got %v", len(ids), seen)
	}
	for i, id := range seen {
		if want := ids[len(ids)-1-i]; id != want {
			t.Errorf("position %d: expected %s, got %s", i, want, id)
		}
	}

	if _, err := f.svc.List(ctx, f.carol, conv, "", 10); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("expected non-member list to be forbidden, got %v", err)
	}
}

func TestMessageService_OwnershipAndDelete(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	msg := f.post(t, f.alice, "mine", nil)

	if _, err := f.svc.Update(ctx, msg.ID, f.bob, &models.UpdateMessageRequest{Content: "hijack"}); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("expected forbidden update, got %v", err)
	}
	if err := f.svc.Delete(ctx, msg.ID, f.bob); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("expected forbidden delete, got %v", err)
	}

	updated, err := f.svc.Update(ctx, msg.ID, f.alice, &models.UpdateMessageRequest{Content: "edited"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "edited" || updated.EditedAt == nil {
		t.Errorf("unexpected updated message %+v", updated)
	}
	if got := f.hub.last(); got.event.Op != protocol.OpMessageUpdate || got.room != "channel:c" {
		t.Errorf("expected message_update to channel:c, got %s → %s", got.event.Op, got.room)
	}

	if err := f.svc.Delete(ctx, msg.ID, f.alice); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := f.hub.last()
	payload, ok := got.event.Data.(protocol.MessageDeletePayload)
	if got.event.Op != protocol.OpMessageDelete || !ok || payload.ID != msg.ID || payload.ChannelID != f.channel {
		t.Errorf("unexpected delete event %s %+v", got.event.Op, got.event.Data)
	}
	if err := f.svc.Delete(ctx, msg.ID, f.alice); !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestMessageService_Reactions(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	msg := f.post(t, f.alice, "react to me", nil)

	for _, user := range []string{f.alice, f.bob, f.bob} {
		if _, err := f.svc.AddReaction(ctx, msg.ID, user, "👍"); err != nil {
			t.Fatalf("AddReaction: %v", err)
		}
	}

	got := f.hub.last()
	payload, ok := got.event.Data.(protocol.ReactionUpdatePayload)
	if got.event.Op != protocol.OpReactionUpdate || !ok {
		t.Fatalf("expected reaction_update, got %s", got.event.Op)
	}
	if len(payload.Reactions) != 1 || payload.Reactions[0].Count != 2 {
		t.Errorf("expected one group with 2 users, got %+v", payload.Reactions)
	}

	reactions, err := f.svc.RemoveReaction(ctx, msg.ID, f.bob, "👍")
	if err != nil {
		t.Fatalf("RemoveReaction: %v", err)
	}
	if len(reactions) != 1 || reactions[0].Count != 1 || reactions[0].Users[0] != f.alice {
		t.Errorf("unexpected reactions after removal %+v", reactions)
	}

	tests := []struct {
		name   string
		userID string
		emoji  string
		want   error
	}{
		{"empty emoji", f.alice, " ", pkg.ErrBadRequest},
		{"whitespace inside", f.alice, "a b", pkg.ErrBadRequest},
		{"not a member", f.carol, "👍", pkg.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.AddReaction(ctx, msg.ID, tt.userID, tt.emoji); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMessageService_Pins(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	msg := f.post(t, f.alice, "pin me", nil)
	reply := f.post(t, f.bob, "reply", &msg.ID)

	if err := f.svc.SetPinned(ctx, msg.ID, f.bob, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	got := f.hub.last()
	pin, ok := got.event.Data.(protocol.PinPayload)
	if got.event.Op != protocol.OpMessagePin || !ok || pin.PinnedBy != f.bob || pin.MessageID != msg.ID {
		t.Errorf("unexpected pin event %s %+v", got.event.Op, got.event.Data)
	}

	if err := f.svc.SetPinned(ctx, msg.ID, f.bob, false); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if got := f.hub.last(); got.event.Op != protocol.OpMessageUnpin {
		t.Errorf("expected message_unpin, got %s", got.event.Op)
	}

	if err := f.svc.SetPinned(ctx, reply.ID, f.alice, true); !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("expected thread reply pin to be rejected, got %v", err)
	}
	if err := f.svc.SetPinned(ctx, msg.ID, f.carol, true); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("expected non-member pin to be forbidden, got %v", err)
	}
}
