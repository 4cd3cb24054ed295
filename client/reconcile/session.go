// Package reconcile, client tarafında push event'leri ile sorgu cache'ini
// birbirine bağlar.
//
// Session'ın iki görevi vardır:
//
//  1. Yeniden bağlanma politikası: bağlantı ilk kez değil de YENİDEN
//     kurulduğunda, kopukken kaçırılmış olabilecek her sorgu (mesaj listeleri,
//     unread sayaçları, presence) bayat işaretlenir. Veri silinmez; ekran eski
//     veriyi göstermeye devam eder, arka planda tazelenir.
//  2. Push uygulama: message_*, read_state_update, reaction_update, pin ve
//     thread event'leri cache'teki snapshot'lara saf fonksiyonlarla (client/cache)
//     uygulanır. Hiç yüklenmemiş bir sorgu yamalanmaz; ilk okumada fetch edilir.
//
// Cache key'leri:
//
//	unread                   → *cache.Counters
//	presence                 → *Presence
//	messages:channel:<id>    → *cache.Infinite[models.Message]
//	messages:dm:<id>         → *cache.Flat[models.Message]
//	messages:thread:<parent> → *cache.Thread[models.Message]
//	seen:dm:<id>             → *SeenBy (sadece push)
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/akinalp/mqvi-sync/client/cache"
	"github.com/akinalp/mqvi-sync/client/eventbus"
	"github.com/akinalp/mqvi-sync/client/querycache"
	"github.com/akinalp/mqvi-sync/client/transport"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
)

// Cache key'leri ve prefix'leri.
const (
	KeyUnread      = "unread"
	KeyPresence    = "presence"
	PrefixMessages = "messages:"
	PrefixThread   = "messages:thread:"
	PrefixSeen     = "seen:"
)

// MessagesKey, konuşmanın mesaj listesinin cache key'i.
func MessagesKey(conv models.Conversation) string {
	return PrefixMessages + conv.Key()
}

// ThreadKey, thread yanıtlarının cache key'i.
func ThreadKey(parentID string) string {
	return PrefixThread + parentID
}

// SeenKey, DM "seen by" snapshot'ının cache key'i.
func SeenKey(conv models.Conversation) string {
	return PrefixSeen + conv.Key()
}

// Transport, Session'ın ihtiyaç duyduğu bağlantı yüzeyi (client/transport.Conn).
type Transport interface {
	eventbus.Source
	eventbus.Announcer
}

// API, fetcher'ların kullandığı REST yüzeyi (client/api.Client).
type API interface {
	Unreads(ctx context.Context) ([]models.UnreadCount, error)
	Messages(ctx context.Context, conv models.Conversation, before string, limit int) (*models.MessagePage, error)
	Replies(ctx context.Context, parentID, after string, limit int) (*models.MessagePage, error)
	Presence(ctx context.Context) ([]protocol.PresencePayload, error)
	MarkRead(ctx context.Context, req models.MarkReadRequest) (*models.ReadReceipt, error)
}

// Options, Session ayarları.
type Options struct {
	// UserID, oturumdaki kullanıcı. Kendi mesajları unread sayacını artırmaz.
	UserID string
	// Index, açık konuşma görünümüne ait mesaj → konuşma index'i.
	// nil ise Session kendi index'ini oluşturur.
	Index *cache.MessageIndex
	// PageSize, ilk sayfa fetch'lerinin limiti (0 = sunucu varsayılanı).
	PageSize int
}

// Session, bir kullanıcı oturumunun cache uzlaştırma katmanı.
type Session struct {
	userID    string
	pageSize  int
	transport Transport
	api       API
	store     *querycache.Store
	bus       *eventbus.Bus
	index     *cache.MessageIndex

	mu          sync.Mutex
	everConnect bool
	unsubs      []func()
	// counted, bu bağlantı döneminde sayaca eklenmiş mesaj ID'leri. Index'ten
	// ayrıdır: fetch ile görülen bir mesaj push ile gelince yine sayılır.
	counted map[string]struct{}
}

// New, Session'ı kurar: fetcher'ları store'a kaydeder, event handler'larını
// bus'a abone eder ve bus'ı transport'a bağlar.
func New(t Transport, client API, store *querycache.Store, opts Options) *Session {
	index := opts.Index
	if index == nil {
		index = cache.NewMessageIndex()
	}
	s := &Session{
		counted:   make(map[string]struct{}),
		userID:    opts.UserID,
		pageSize:  opts.PageSize,
		transport: t,
		api:       client,
		store:     store,
		bus:       eventbus.New(),
		index:     index,
	}

	store.Register(KeyUnread, s.fetchUnread)
	store.Register(KeyPresence, s.fetchPresence)
	store.Register(PrefixMessages, s.fetchMessages)
	store.Register(PrefixThread, s.fetchThread)

	s.subscribe()

	// Invalidation hook'u duyurulardan önce kaydedilir: yeniden bağlanmada
	// önce cache bayatlar, sonra odalara yeniden katılınır.
	if t.OnConnect(s.onConnect) {
		s.mu.Lock()
		s.everConnect = true
		s.mu.Unlock()
	}
	s.bus.Bind(t, t)

	return s
}

// Bus, Session'ın event bus'ı. View'lar ek handler'larını buraya abone eder.
func (s *Session) Bus() *eventbus.Bus { return s.bus }

// Index, Session'ın kullandığı mesaj index'i.
func (s *Session) Index() *cache.MessageIndex { return s.index }

// Close, Session'ın bus aboneliklerini kaldırır.
func (s *Session) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// onConnect, her aktif bağlanmada çalışır. İlk bağlanma hiçbir şey kaçırmamıştır.
func (s *Session) onConnect() {
	s.mu.Lock()
	reconnect := s.everConnect
	s.everConnect = true
	if reconnect {
		// Sayaçlar yeniden çekilecek; kaçırılan mesajlar fetch sonucunda.
		clear(s.counted)
	}
	s.mu.Unlock()

	if !reconnect {
		return
	}
	n := s.store.MarkStale(PrefixMessages, KeyUnread, KeyPresence)
	log.Printf("[client] reconnected, %d cached queries marked stale", n)
}

// ─── Reads ───

// Counters, unread sayaçlarını döner; bayatsa arka planda tazelenir.
func (s *Session) Counters() *cache.Counters {
	c, _ := querycache.Load[*cache.Counters](s.store, KeyUnread)
	return c
}

// Presence, presence snapshot'ını döner.
func (s *Session) Presence() *Presence {
	p, _ := querycache.Load[*Presence](s.store, KeyPresence)
	return p
}

// ChannelMessages, kanal mesaj geçmişini döner (en yeniden eskiye, sayfalı).
func (s *Session) ChannelMessages(channelID string) *cache.Infinite[models.Message] {
	m, _ := querycache.Load[*cache.Infinite[models.Message]](s.store, MessagesKey(models.ChannelConversation(channelID)))
	return m
}

// DMMessages, DM mesaj geçmişini döner (en yeniden eskiye).
func (s *Session) DMMessages(dmChannelID string) *cache.Flat[models.Message] {
	m, _ := querycache.Load[*cache.Flat[models.Message]](s.store, MessagesKey(models.DMConversation(dmChannelID)))
	return m
}

// Thread, thread yanıtlarını döner (en eskiden yeniye).
func (s *Session) Thread(parentID string) *cache.Thread[models.Message] {
	t, _ := querycache.Load[*cache.Thread[models.Message]](s.store, ThreadKey(parentID))
	return t
}

// SeenBy, DM'deki katılımcıların okuma pozisyonlarını döner.
func (s *Session) SeenBy(dmChannelID string) *SeenBy {
	v, _ := s.store.Peek(SeenKey(models.DMConversation(dmChannelID)))
	seen, _ := v.(*SeenBy)
	return seen
}

// ─── Writes ───

// MarkRead, okuma pozisyonunu ilerletir. Bağlantı aktifse gateway üzerinden
// mark_read gönderilir; sonuç read_state_update push'u ile gelir. Bağlantı
// yoksa REST ile işaretlenir ve dönen receipt hemen uygulanır.
func (s *Session) MarkRead(ctx context.Context, conv models.Conversation, messageID string) error {
	req := models.MarkReadRequest{
		LastReadMessageID: messageID,
		ChannelID:         conv.ChannelID,
		DMChannelID:       conv.DMChannelID,
	}

	err := s.transport.Send(protocol.OpMarkRead, req)
	if err == nil {
		return nil
	}
	if !errors.Is(err, transport.ErrNotConnected) {
		return err
	}

	receipt, err := s.api.MarkRead(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	s.applyReadState(protocol.NewReadStateUpdate(receipt))
	return nil
}

// ─── Fetchers ───

func (s *Session) fetchUnread(ctx context.Context, _ string) (any, error) {
	counts, err := s.api.Unreads(ctx)
	if err != nil {
		return nil, err
	}
	return cache.SetCounts(nil, counts), nil
}

func (s *Session) fetchPresence(ctx context.Context, _ string) (any, error) {
	list, err := s.api.Presence(ctx)
	if err != nil {
		return nil, err
	}
	return newPresence(list), nil
}

// fetchMessages, konuşmanın ilk (en yeni) sayfasını yükler. Kanallar çok
// sayfalı, DM'ler tek sayfalı snapshot olarak tutulur.
func (s *Session) fetchMessages(ctx context.Context, key string) (any, error) {
	conv, ok := models.ParseConversationKey(strings.TrimPrefix(key, PrefixMessages))
	if !ok {
		return nil, fmt.Errorf("invalid messages key %q", key)
	}

	page, err := s.api.Messages(ctx, conv, "", s.pageSize)
	if err != nil {
		return nil, err
	}
	s.index.TrackMessages(page.Messages)

	if conv.IsDM() {
		return &cache.Flat[models.Message]{Items: page.Messages, Cursor: page.NextCursor}, nil
	}
	return &cache.Infinite[models.Message]{Pages: []cache.Page[models.Message]{
		{Items: page.Messages, Cursor: page.NextCursor},
	}}, nil
}

func (s *Session) fetchThread(ctx context.Context, key string) (any, error) {
	parentID := strings.TrimPrefix(key, PrefixThread)
	page, err := s.api.Replies(ctx, parentID, "", s.pageSize)
	if err != nil {
		return nil, err
	}
	s.index.TrackMessages(page.Messages)
	return cache.MergeThreadNewer(nil, page.Messages, page.NextCursor), nil
}

// ─── Push handlers ───

func (s *Session) subscribe() {
	s.unsubs = append(s.unsubs,
		eventbus.On(s.bus, protocol.OpMessageCreate, s.onMessageCreate),
		eventbus.On(s.bus, protocol.OpMessageUpdate, s.onMessageUpdate),
		eventbus.On(s.bus, protocol.OpMessageDelete, s.onMessageDelete),
		eventbus.On(s.bus, protocol.OpReadStateUpdate, s.applyReadState),
		eventbus.On(s.bus, protocol.OpReadReceiptUpdate, s.onReadReceipt),
		eventbus.On(s.bus, protocol.OpReactionUpdate, s.onReactionUpdate),
		eventbus.On(s.bus, protocol.OpMessagePin, func(p protocol.PinPayload) {
			s.patchMessage(p.MessageID, p.Conversation, cache.WithPin(true))
		}),
		eventbus.On(s.bus, protocol.OpMessageUnpin, func(p protocol.PinPayload) {
			s.patchMessage(p.MessageID, p.Conversation, cache.WithPin(false))
		}),
		eventbus.On(s.bus, protocol.OpThreadUpdate, func(p protocol.ThreadUpdatePayload) {
			s.patchMessage(p.ParentID, p.Conversation, cache.WithReplyCount(p.ReplyCount))
		}),
		eventbus.On(s.bus, protocol.OpPresenceUpdate, s.onPresence),
	)
}

func (s *Session) onMessageCreate(m protocol.MessagePayload) {
	s.index.Track(m.ID, m.Conversation.Key())

	if m.IsThreadReply() {
		querycache.Update(s.store, ThreadKey(*m.ThreadParentID), func(t *cache.Thread[models.Message]) *cache.Thread[models.Message] {
			// Daha yeni sayfalar henüz yüklenmemişse araya eklemek boşluk yaratır;
			// yanıt o sayfayla birlikte gelir.
			if t.NewerCursor != "" {
				return t
			}
			return cache.AppendThread(t, m)
		})
	} else {
		key := MessagesKey(m.Conversation)
		_ = querycache.Update(s.store, key, func(l *cache.Infinite[models.Message]) *cache.Infinite[models.Message] {
			return cache.PrependInfinite(l, m)
		}) || querycache.Update(s.store, key, func(l *cache.Flat[models.Message]) *cache.Flat[models.Message] {
			return cache.PrependFlat(l, m)
		})
	}

	// Aynı push iki kez gelebilir (reconnect yarışı); sayaç bir kez artar.
	if !s.markCounted(m.ID) {
		return
	}
	querycache.Update(s.store, KeyUnread, func(c *cache.Counters) *cache.Counters {
		return cache.ApplyNewMessage(c, cache.NewMessageFrom(m), s.userID)
	})
}

func (s *Session) markCounted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counted[id]; ok {
		return false
	}
	s.counted[id] = struct{}{}
	return true
}

func (s *Session) onMessageUpdate(m protocol.MessagePayload) {
	s.patchMessage(m.ID, m.Conversation, cache.WithEdit(m))
}

func (s *Session) onMessageDelete(p protocol.MessageDeletePayload) {
	if p.ThreadParentID != nil && *p.ThreadParentID != "" {
		querycache.Update(s.store, ThreadKey(*p.ThreadParentID), func(t *cache.Thread[models.Message]) *cache.Thread[models.Message] {
			return cache.RemoveThread(t, p.ID)
		})
	} else {
		key := MessagesKey(p.Conversation)
		_ = querycache.Update(s.store, key, func(l *cache.Infinite[models.Message]) *cache.Infinite[models.Message] {
			return cache.RemoveInfinite(l, p.ID)
		}) || querycache.Update(s.store, key, func(l *cache.Flat[models.Message]) *cache.Flat[models.Message] {
			return cache.RemoveFlat(l, p.ID)
		})
	}
	s.index.Forget(p.ID)
	s.mu.Lock()
	delete(s.counted, p.ID)
	s.mu.Unlock()
}

func (s *Session) applyReadState(p protocol.ReadStateUpdatePayload) {
	querycache.Update(s.store, KeyUnread, func(c *cache.Counters) *cache.Counters {
		return cache.ApplyReadState(c, p)
	})
}

func (s *Session) onReadReceipt(p protocol.ReadReceiptUpdatePayload) {
	// Kendi receipt'imiz read_state_update olarak ayrıca gelir.
	if p.PublicUser.ID == s.userID || !p.Conversation.IsDM() {
		return
	}
	key := SeenKey(p.Conversation)
	if !querycache.Update(s.store, key, func(seen *SeenBy) *SeenBy { return seen.withReceipt(p) }) {
		s.store.Set(key, (*SeenBy)(nil).withReceipt(p))
	}
}

func (s *Session) onReactionUpdate(p protocol.ReactionUpdatePayload) {
	s.patchMessage(p.MessageID, p.Conversation, cache.WithReactions(p.Reactions))
}

func (s *Session) onPresence(p protocol.PresencePayload) {
	querycache.Update(s.store, KeyPresence, func(cur *Presence) *Presence {
		return cur.with(p.UserID, p.Status)
	})
}

// patchMessage, mesajı bulunduğu konuşma listesinde ve yüklü thread'lerde yamalar.
//
// Konuşma önce view'a ait index'ten çözülür; index'te yoksa payload'daki
// konuşma kullanılır. İkisi de yoksa sadece thread'ler taranır.
func (s *Session) patchMessage(messageID string, conv models.Conversation, patch cache.MessagePatch) {
	if convKey, ok := s.index.Lookup(messageID); ok {
		if parsed, ok := models.ParseConversationKey(convKey); ok {
			conv = parsed
		}
	}

	if conv.Valid() {
		key := MessagesKey(conv)
		_ = querycache.Update(s.store, key, func(l *cache.Infinite[models.Message]) *cache.Infinite[models.Message] {
			return cache.PatchMessage(l, messageID, patch)
		}) || querycache.Update(s.store, key, func(l *cache.Flat[models.Message]) *cache.Flat[models.Message] {
			return cache.PatchMessage(l, messageID, patch)
		})
	}

	querycache.UpdatePrefix(s.store, PrefixThread, func(_ string, t *cache.Thread[models.Message]) *cache.Thread[models.Message] {
		return cache.PatchMessage(t, messageID, patch)
	})
}
