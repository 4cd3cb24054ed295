package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akinalp/mqvi-sync/database"
	"github.com/akinalp/mqvi-sync/database/dbtest"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/repository"
)

// countingReadStateRepo, gerçek repository'yi sarar ve yazma sayısını tutar.
type countingReadStateRepo struct {
	repository.ReadStateRepository
	upserts atomic.Int32
}

func (r *countingReadStateRepo) Upsert(ctx context.Context, receipt *models.ReadReceipt) error {
	r.upserts.Add(1)
	return r.ReadStateRepository.Upsert(ctx, receipt)
}

type readStateFixture struct {
	db        *database.DB
	seed      *dbtest.Seeder
	readState *countingReadStateRepo
	svc       *readStateService
	clock     time.Time
}

func newReadStateFixture(t *testing.T) *readStateFixture {
	t.Helper()
	db := dbtest.New(t)
	f := &readStateFixture{
		db:        db,
		seed:      dbtest.NewSeeder(t, db),
		readState: &countingReadStateRepo{ReadStateRepository: repository.NewSQLiteReadStateRepo(db.Conn)},
		clock:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewReadStateService(
		f.readState,
		repository.NewSQLiteMessageRepo(db.Conn),
		repository.NewSQLiteConversationRepo(db.Conn),
		repository.NewSQLiteMentionRepo(db.Conn),
		4,
	).(*readStateService)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func mark(channelID, dmChannelID, messageID string) models.MarkReadRequest {
	return models.MarkReadRequest{LastReadMessageID: messageID, ChannelID: channelID, DMChannelID: dmChannelID}
}

func TestMarkAsRead_NoReceiptCountsAllTopLevel(t *testing.T) {
	f := newReadStateFixture(t)
	u := f.seed.User("u", "user")
	other := f.seed.User("o", "other")
	srv := f.seed.Server("s", u, other)
	ch := f.seed.TextChannel("c", srv)

	for i := 0; i < 10; i++ {
		f.seed.Message(dbtest.Msg{ID: fmt.Sprintf("m%d", i), ChannelID: ch, AuthorID: other, SentAt: at(i)})
	}
	f.seed.Message(dbtest.Msg{ChannelID: ch, AuthorID: other, ParentID: "m1", SentAt: at(20)})
	f.seed.Message(dbtest.Msg{ChannelID: ch, AuthorID: other, ParentID: "m2", SentAt: at(21)})

	count, err := f.svc.GetUnreadCount(context.Background(), u, models.ChannelConversation(ch))
	if err != nil {
		t.Fatalf("GetUnreadCount: %v", err)
	}
	if count.UnreadCount != 10 {
		t.Errorf("expected 10 unread (replies excluded), got %d", count.UnreadCount)
	}
	if count.LastReadMessageID != nil {
		t.Errorf("expected no watermark, got %v", *count.LastReadMessageID)
	}
}

func TestMarkAsRead_OlderMarkIsNoOp(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	u := f.seed.User("u", "user")
	srv := f.seed.Server("s", u)
	ch := f.seed.TextChannel("c", srv)
	f.seed.Message(dbtest.Msg{ID: "m3", ChannelID: ch, AuthorID: u, SentAt: at(3)})
	f.seed.Message(dbtest.Msg{ID: "m5", ChannelID: ch, AuthorID: u, SentAt: at(5)})

	first, advanced, err := f.svc.MarkAsRead(ctx, u, mark(ch, "", "m5"))
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if !advanced {
		t.Errorf("first mark should advance")
	}
	if f.readState.upserts.Load() != 1 {
		t.Fatalf("expected 1 write, got %d", f.readState.upserts.Load())
	}

	second, advanced, err := f.svc.MarkAsRead(ctx, u, mark(ch, "", "m3"))
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if advanced {
		t.Errorf("older mark must report no advance")
	}
	if second.LastReadMessageID != "m5" {
		t.Errorf("expected watermark to stay at m5, got %s", second.LastReadMessageID)
	}
	if !second.LastReadAt.Equal(first.LastReadAt) {
		t.Errorf("expected unchanged receipt, last_read_at %v != %v", second.LastReadAt, first.LastReadAt)
	}
	if n := f.readState.upserts.Load(); n != 1 {
		t.Errorf("regression must not write, got %d writes", n)
	}

	// Aynı mesajı tekrar işaretlemek de no-op (eşit sentAt)
	if _, _, err := f.svc.MarkAsRead(ctx, u, mark(ch, "", "m5")); err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if n := f.readState.upserts.Load(); n != 1 {
		t.Errorf("equal sentAt must not write, got %d writes", n)
	}
}

func TestMarkAsRead_Monotonic(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	author := f.seed.User("author", "author")
	ids := []string{"a", "b", "c", "d"}
	perms := permutations(ids)

	members := []string{author}
	for n := range perms {
		members = append(members, f.seed.User(fmt.Sprintf("u%d", n), fmt.Sprintf("user%d", n)))
	}
	srv := f.seed.Server("s", members...)
	ch := f.seed.TextChannel("c", srv)

	for i, id := range ids {
		f.seed.Message(dbtest.Msg{ID: id, ChannelID: ch, AuthorID: author, SentAt: at(i + 1)})
	}

	for n, perm := range perms {
		user := members[n+1]
		for _, id := range perm {
			if _, _, err := f.svc.MarkAsRead(ctx, user, mark(ch, "", id)); err != nil {
				t.Fatalf("perm %v: mark %s: %v", perm, id, err)
			}
		}
		got, err := f.svc.GetLastReadMessageID(ctx, user, models.ChannelConversation(ch))
		if err != nil {
			t.Fatalf("perm %v: %v", perm, err)
		}
		if got == nil || *got != "d" {
			t.Errorf("perm %v: expected final watermark d, got %v", perm, got)
		}
	}
}

func TestMarkAsRead_DeletedWatermarkBypassesGuard(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	u := f.seed.User("u", "user")
	dm := f.seed.DM("d", u)
	f.seed.Message(dbtest.Msg{ID: "old", DMChannelID: dm, AuthorID: u, SentAt: at(1)})
	f.seed.Message(dbtest.Msg{ID: "new", DMChannelID: dm, AuthorID: u, SentAt: at(9)})
	f.seed.Message(dbtest.Msg{ID: "later", DMChannelID: dm, AuthorID: u, SentAt: at(10)})

	if _, _, err := f.svc.MarkAsRead(ctx, u, mark("", dm, "new")); err != nil {
		t.Fatalf("mark: %v", err)
	}
	f.seed.DeleteMessage("new")

	// Silinmiş watermark'tan daha eski bir mesaj bile kabul edilir
	receipt, _, err := f.svc.MarkAsRead(ctx, u, mark("", dm, "old"))
	if err != nil {
		t.Fatalf("mark after delete: %v", err)
	}
	if receipt.LastReadMessageID != "old" {
		t.Errorf("expected guard bypass, got %s", receipt.LastReadMessageID)
	}
	if n := f.readState.upserts.Load(); n != 2 {
		t.Errorf("expected 2 writes, got %d", n)
	}
}

func TestMarkAsRead_RequiresMembership(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	a := f.seed.User("a", "alice")
	b := f.seed.User("b", "bob")
	outsider := f.seed.User("m", "mallory")
	dm := f.seed.DM("d", a, b)
	srv := f.seed.Server("s", a)
	ch := f.seed.TextChannel("c", srv)
	f.seed.Message(dbtest.Msg{ID: "m1", DMChannelID: dm, AuthorID: a, SentAt: f.clock})
	f.seed.Message(dbtest.Msg{ID: "c1", ChannelID: ch, AuthorID: a, SentAt: f.clock})

	for _, req := range []models.MarkReadRequest{mark("", dm, "m1"), mark(ch, "", "c1")} {
		receipt, advanced, err := f.svc.MarkAsRead(ctx, outsider, req)
		if !errors.Is(err, pkg.ErrForbidden) {
			t.Errorf("%+v: expected ErrForbidden, got receipt=%+v err=%v", req, receipt, err)
		}
		if advanced {
			t.Errorf("%+v: rejected mark reported an advance", req)
		}
	}
	if n := f.readState.upserts.Load(); n != 0 {
		t.Errorf("non-member mark must not write, got %d writes", n)
	}

	readers, err := f.svc.GetMessageReaders(ctx, "m1", models.DMConversation(dm), a)
	if err != nil {
		t.Fatalf("readers: %v", err)
	}
	if len(readers) != 0 {
		t.Errorf("outsider must not appear in seen-by, got %+v", readers)
	}
}

func TestGetUnreadCount_DeletedWatermarkFallsBackToFullCount(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	u := f.seed.User("u", "user")
	srv := f.seed.Server("s", u)
	ch := f.seed.TextChannel("c", srv)
	for i := 1; i <= 4; i++ {
		f.seed.Message(dbtest.Msg{ID: fmt.Sprintf("m%d", i), ChannelID: ch, AuthorID: u, SentAt: at(i)})
	}

	if _, _, err := f.svc.MarkAsRead(ctx, u, mark(ch, "", "m3")); err != nil {
		t.Fatalf("mark: %v", err)
	}
	count, err := f.svc.GetUnreadCount(ctx, u, models.ChannelConversation(ch))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.UnreadCount != 1 {
		t.Errorf("expected 1 unread after m3, got %d", count.UnreadCount)
	}

	f.seed.DeleteMessage("m3")
	count, err = f.svc.GetUnreadCount(ctx, u, models.ChannelConversation(ch))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.UnreadCount != 3 {
		t.Errorf("expected full count 3 after watermark deletion, got %d", count.UnreadCount)
	}
	if count.LastReadMessageID == nil || *count.LastReadMessageID != "m3" {
		t.Errorf("dangling watermark should still be reported, got %v", count.LastReadMessageID)
	}
}

func TestMarkAsRead_Validation(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	u := f.seed.User("u", "user")
	srv := f.seed.Server("s", u)
	ch := f.seed.TextChannel("c", srv)
	other := f.seed.TextChannel("c2", srv)
	f.seed.Message(dbtest.Msg{ID: "m1", ChannelID: ch, AuthorID: u})

	tests := []struct {
		name string
		req  models.MarkReadRequest
		want string
	}{
		{"missing message", mark(ch, "", "nope"), "message not found"},
		{"wrong conversation", mark(other, "", "m1"), "message does not belong to conversation"},
		{"dm id for channel message", mark("", ch, "m1"), "message does not belong to conversation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.MarkAsRead(ctx, u, tt.req)
			if !errors.Is(err, pkg.ErrBadRequest) {
				t.Fatalf("expected ErrBadRequest, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
	if n := f.readState.upserts.Load(); n != 0 {
		t.Errorf("invalid requests must not write, got %d", n)
	}
}

func TestExactlyOneOf_AllOperations(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()

	both := models.Conversation{ChannelID: "c", DMChannelID: "d"}
	neither := models.Conversation{}

	for _, conv := range []models.Conversation{both, neither} {
		calls := map[string]error{}
		_, _, calls["MarkAsRead"] = f.svc.MarkAsRead(ctx, "u", mark(conv.ChannelID, conv.DMChannelID, "m1"))
		_, calls["GetUnreadCount"] = f.svc.GetUnreadCount(ctx, "u", conv)
		_, calls["GetLastReadMessageID"] = f.svc.GetLastReadMessageID(ctx, "u", conv)
		_, calls["GetMessageReaders"] = f.svc.GetMessageReaders(ctx, "m1", conv, "")

		for op, err := range calls {
			if !errors.Is(err, pkg.ErrBadRequest) {
				t.Errorf("%s(%+v): expected ErrBadRequest, got %v", op, conv, err)
			}
		}
	}
}

func TestGetMessageReaders(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	a := f.seed.User("a", "alice")
	b := f.seed.User("b", "bob")
	c := f.seed.User("c", "carol")
	dm := f.seed.DM("d", a, b, c)
	f.seed.Message(dbtest.Msg{ID: "m1", DMChannelID: dm, AuthorID: a, SentAt: f.clock})
	f.seed.Message(dbtest.Msg{ID: "m2", DMChannelID: dm, AuthorID: a, SentAt: f.clock.Add(time.Hour)})

	// a ve b m1'i okur (last_read_at = saat, m1'den sonra); c hiç okumaz
	for _, u := range []string{a, b} {
		if _, _, err := f.svc.MarkAsRead(ctx, u, mark("", dm, "m1")); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}

	readers, err := f.svc.GetMessageReaders(ctx, "m1", models.DMConversation(dm), a)
	if err != nil {
		t.Fatalf("readers: %v", err)
	}
	if len(readers) != 1 || readers[0].UserID != b {
		t.Errorf("expected [b], got %+v", readers)
	}

	readers, err = f.svc.GetMessageReaders(ctx, "m2", models.DMConversation(dm), "")
	if err != nil {
		t.Fatalf("readers: %v", err)
	}
	if len(readers) != 0 {
		t.Errorf("nobody has read m2 yet, got %+v", readers)
	}

	if _, err := f.svc.GetMessageReaders(ctx, "nope", models.DMConversation(dm), ""); !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest for missing message, got %v", err)
	}
	if _, err := f.svc.GetMessageReaders(ctx, "m1", models.ChannelConversation("x"), ""); !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest for conversation mismatch, got %v", err)
	}
}

func TestGetUnreadCount_Mentions(t *testing.T) {
	f := newReadStateFixture(t)
	ctx := context.Background()
	u := f.seed.User("u", "user")
	o := f.seed.User("o", "other")
	srv := f.seed.Server("s", u, o)
	ch := f.seed.TextChannel("c", srv)
	f.seed.Message(dbtest.Msg{ID: "m1", ChannelID: ch, AuthorID: o, SentAt: at(1)})
	f.seed.Message(dbtest.Msg{ID: "m2", ChannelID: ch, AuthorID: o, SentAt: at(2)})
	f.seed.Mention(u, "m1", ch, "", at(1))
	f.seed.Mention(u, "m2", ch, "", at(2))

	count, err := f.svc.GetUnreadCount(ctx, u, models.ChannelConversation(ch))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.MentionCount != 2 {
		t.Errorf("expected 2 mentions without watermark, got %d", count.MentionCount)
	}

	if _, _, err := f.svc.MarkAsRead(ctx, u, mark(ch, "", "m1")); err != nil {
		t.Fatalf("mark: %v", err)
	}
	count, err = f.svc.GetUnreadCount(ctx, u, models.ChannelConversation(ch))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.UnreadCount != 1 || count.MentionCount != 1 {
		t.Errorf("expected 1/1 after marking m1, got %d/%d", count.UnreadCount, count.MentionCount)
	}
}

func TestGetUnreadCounts_MatchesPerConversation(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			f := newReadStateFixture(t)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(seed))

			u := f.seed.User("u", "user")
			o := f.seed.User("o", "other")
			srv := f.seed.Server("s", u, o)
			hidden := f.seed.Server("hidden", o)
			f.seed.TextChannel("hidden-c", hidden)
			f.seed.VoiceChannel("voice", srv)

			var convs []models.Conversation
			for i := 0; i < 6; i++ {
				convs = append(convs, models.ChannelConversation(f.seed.TextChannel(fmt.Sprintf("c%d", i), srv)))
			}
			for i := 0; i < 4; i++ {
				convs = append(convs, models.DMConversation(f.seed.DM(fmt.Sprintf("d%d", i), u, o)))
			}

			for ci, conv := range convs {
				n := rng.Intn(8)
				var ids []string
				for j := 0; j < n; j++ {
					id := fmt.Sprintf("m-%d-%d", ci, j)
					msg := dbtest.Msg{ID: id, ChannelID: conv.ChannelID, DMChannelID: conv.DMChannelID, AuthorID: o, SentAt: at(j * 10)}
					if j > 0 && rng.Intn(4) == 0 {
						msg.ParentID = ids[0]
					}
					f.seed.Message(msg)
					ids = append(ids, id)
					if rng.Intn(3) == 0 {
						f.seed.Mention(u, id, conv.ChannelID, conv.DMChannelID, msg.SentAt)
					}
				}
				if len(ids) == 0 {
					continue
				}
				switch rng.Intn(3) {
				case 0: // receipt yok
				case 1: // geçerli watermark
					if _, _, err := f.svc.MarkAsRead(ctx, u, mark(conv.ChannelID, conv.DMChannelID, ids[rng.Intn(len(ids))])); err != nil {
						t.Fatalf("mark: %v", err)
					}
				case 2: // silinmiş watermark
					victim := ids[len(ids)-1]
					if _, _, err := f.svc.MarkAsRead(ctx, u, mark(conv.ChannelID, conv.DMChannelID, victim)); err != nil {
						t.Fatalf("mark: %v", err)
					}
					f.seed.DeleteMessage(victim)
				}
			}

			batched, err := f.svc.GetUnreadCounts(ctx, u)
			if err != nil {
				t.Fatalf("GetUnreadCounts: %v", err)
			}
			if len(batched) != len(convs) {
				t.Fatalf("expected %d visible conversations, got %d", len(convs), len(batched))
			}

			for _, got := range batched {
				want, err := f.svc.GetUnreadCount(ctx, u, got.Conversation)
				if err != nil {
					t.Fatalf("GetUnreadCount(%s): %v", got.Key(), err)
				}
				if got.UnreadCount != want.UnreadCount || got.MentionCount != want.MentionCount {
					t.Errorf("%s: batched %d/%d, single %d/%d", got.Key(),
						got.UnreadCount, got.MentionCount, want.UnreadCount, want.MentionCount)
				}
			}
		})
	}
}

func permutations(in []string) [][]string {
	if len(in) <= 1 {
		return [][]string{append([]string{}, in...)}
	}
	var out [][]string
	for i := range in {
		rest := make([]string, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{in[i]}, p...))
		}
	}
	return out
}
